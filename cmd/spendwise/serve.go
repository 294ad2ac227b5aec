package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"spendwise/internal/cli"
	apphttp "spendwise/internal/http"
	"spendwise/internal/log"
	"spendwise/internal/services"
)

const shutdownTimeout = 30 * time.Second

var withSweeper bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadAndValidateConfig(envFile)
		if err != nil {
			return err
		}
		logger := cli.SetupLogger(cfg)

		app, err := cli.NewApp(cmd.Context(), cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize application", log.FieldError, err)
			return err
		}

		srv := apphttp.NewServer(cfg.Addr(), apphttp.Services{
			Auth:      app.Auth,
			Ledger:    app.Ledger,
			Recurring: app.Recurring,
			Processor: app.Processor,
			Analytics: app.Analytics,
			Budgets:   app.Budgets,
		}, apphttp.Options{
			Issuer:                app.Issuer,
			Logger:                logger,
			CORSAllowedOrigins:    cfg.CORSAllowedOrigins,
			AuthRequestsPerMinute: cfg.RateLimitPerMinute,
			Ping:                  app.Backend.Ping,
		})
		srv.ReadTimeout = 10 * time.Second
		srv.WriteTimeout = 10 * time.Second
		srv.IdleTimeout = 60 * time.Second
		srv.MaxHeaderBytes = 1 << 16

		var scheduler *services.SweepScheduler
		if withSweeper {
			scheduler = services.NewSweepScheduler(app.Processor, services.SweepSchedulerConfig{
				Interval:   cfg.RecurringSweepInterval,
				RunOnStart: true,
			}, logger)
		}

		ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Server shutdown error", log.FieldError, err)
			}
			if scheduler != nil {
				if err := scheduler.Stop(ctx); err != nil {
					logger.Warn("Sweep scheduler stop error", log.FieldError, err)
				}
			}
			if err := app.Close(); err != nil {
				logger.Warn("Backend close error", log.FieldError, err)
			}
		})

		if scheduler != nil {
			if err := scheduler.Start(ctx); err != nil {
				return err
			}
		}

		logger.Info("Starting spendwise server",
			"addr", cfg.Addr(),
			"backend", cfg.DataBackend,
			"sweeper", withSweeper)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "addr", cfg.Addr())
			_ = app.Close()
			return err
		}

		cli.WaitForShutdown(ctx, done)
		logger.Info("Server stopped gracefully")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withSweeper, "sweep", false, "also run the recurring sweep in this process")
}
