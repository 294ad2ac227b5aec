package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spendwise/internal/log"
)

// SweepSchedulerConfig holds configuration for the sweep scheduler
type SweepSchedulerConfig struct {
	// Interval is how often every user's rules are swept (default: 1h)
	Interval time.Duration

	// RunOnStart sweeps once immediately when the scheduler starts (default: true)
	RunOnStart bool
}

func DefaultSweepSchedulerConfig() SweepSchedulerConfig {
	return SweepSchedulerConfig{
		Interval:   time.Hour,
		RunOnStart: true,
	}
}

// Sweeper is the part of the recurring engine the scheduler drives.
type Sweeper interface {
	SweepAll(ctx context.Context, asOf time.Time) (SweepReport, error)
}

// SweepScheduler runs the recurring engine for every user on a fixed
// interval, so rules advance even for users who never log in.
type SweepScheduler struct {
	sweeper Sweeper
	config  SweepSchedulerConfig
	now     func() time.Time
	logger  *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	last    SweepReport
}

func NewSweepScheduler(sweeper Sweeper, config SweepSchedulerConfig, logger *log.Logger) *SweepScheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepSchedulerConfig().Interval
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SweepScheduler{
		sweeper: sweeper,
		config:  config,
		now:     time.Now,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (s *SweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweep scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	s.logger.InfoContext(ctx, "Sweep scheduler started",
		"interval", s.config.Interval,
		"run_on_start", s.config.RunOnStart)
	return nil
}

// Stop signals the loop and waits for an in-flight sweep to finish.
func (s *SweepScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
		s.logger.InfoContext(ctx, "Sweep scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Sweep scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *SweepScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastReport returns the result of the most recent completed sweep.
func (s *SweepScheduler) LastReport() SweepReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *SweepScheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.sweep(ctx)
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SweepScheduler) sweep(ctx context.Context) {
	report, err := s.sweeper.SweepAll(ctx, s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "Recurring sweep failed",
			log.FieldOperation, log.OpSweep,
			log.FieldError, err)
		return
	}
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
}
