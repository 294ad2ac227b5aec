// Package cli provides the initialization shared by cmd/spendwise and
// cmd/recurring-worker: logging, configuration, the backend and the service
// graph built on it.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spendwise/internal/auth"
	"spendwise/internal/backend"
	"spendwise/internal/cache"
	"spendwise/internal/config"
	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/services"
)

// SetupLogger builds the process logger from cfg and makes it the slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	if cfg != nil {
		lc.Level = log.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig(envFile string) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// App is the wired service graph of one process.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Backend   *backend.BackendResult
	Issuer    *auth.Issuer
	Processor *services.RecurringProcessor
	Ledger    *services.LedgerService
	Recurring *services.RecurringService
	Analytics *services.AnalyticsService
	Budgets   *services.BudgetService
	Auth      *services.AuthService

	cacheManager *cache.Manager
}

// NewApp opens the configured backend and builds every service on top of it.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	size, ttl := cfg.CacheSize, cfg.CacheTTL
	if size <= 0 {
		size = services.DefaultAnalyticsCacheSize
	}
	if ttl <= 0 {
		ttl = services.DefaultAnalyticsCacheTTL
	}
	analyticsCache := cache.NewLRUCache[any](size, ttl)
	manager := cache.NewManager(logger)
	manager.Register(analyticsCache)
	manager.StartCleanup(ttl)

	clock := core.SystemClock{}
	store := res.Store
	analytics := services.NewAnalyticsService(store, analyticsCache, clock, logger)
	processor := services.NewRecurringProcessor(store, res.Publisher,
		services.WithProcessorLogger(logger),
		services.WithProcessorClock(clock),
		services.WithInvalidator(analytics),
		services.WithSweepWorkers(cfg.RecurringSweepConcurrency))

	return &App{
		Config:       cfg,
		Logger:       logger,
		Backend:      res,
		Issuer:       issuer,
		Processor:    processor,
		Ledger:       services.NewLedgerService(store, res.Publisher, analytics, clock, logger),
		Recurring:    services.NewRecurringService(store, clock, logger),
		Analytics:    analytics,
		Budgets:      services.NewBudgetService(store, clock, logger),
		Auth:         services.NewAuthService(store, issuer, processor, clock, logger),
		cacheManager: manager,
	}, nil
}

// Close stops background work and releases the backend.
func (a *App) Close() error {
	a.cacheManager.Stop()
	return a.Backend.Close()
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs with a context bounded by timeout before done is closed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
