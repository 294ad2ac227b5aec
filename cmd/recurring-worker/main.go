// Command recurring-worker sweeps every user's recurring rules on a fixed
// interval, independently of logins.
package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"spendwise/internal/cli"
	"spendwise/internal/log"
	"spendwise/internal/services"
)

const shutdownTimeout = 30 * time.Second

var (
	envFile     string
	runOnStart  bool
	intervalArg time.Duration

	rootCmd = &cobra.Command{
		Use:   "recurring-worker",
		Short: "Sweep recurring rules on a fixed interval",
		Long: `recurring-worker runs the recurring engine for every user with an active
rule, once per interval, so that rules advance without waiting for a login.`,
		SilenceUsage: true,
		RunE:         runWorker,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file")
	rootCmd.Flags().BoolVar(&runOnStart, "run-on-start", true, "sweep once immediately at startup")
	rootCmd.Flags().DurationVar(&intervalArg, "interval", 0, "override RECURRING_SWEEP_INTERVAL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := cli.LoadAndValidateConfig(envFile)
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg)

	interval := cfg.RecurringSweepInterval
	if intervalArg > 0 {
		interval = intervalArg
	}
	logger.Info("Starting recurring-worker",
		"backend", cfg.DataBackend,
		"interval", interval.String(),
		"concurrency", cfg.RecurringSweepConcurrency)

	app, err := cli.NewApp(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err)
		return err
	}

	scheduler := services.NewSweepScheduler(app.Processor, services.SweepSchedulerConfig{
		Interval:   interval,
		RunOnStart: runOnStart,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Warn("Sweep scheduler stop error", log.FieldError, err)
		}
		if err := app.Close(); err != nil {
			logger.Warn("Backend close error", log.FieldError, err)
		}
	})

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start sweep scheduler", log.FieldError, err)
		_ = app.Close()
		return err
	}

	cli.WaitForShutdown(ctx, done)
	last := scheduler.LastReport()
	logger.Info("Recurring worker stopped",
		"users", last.Users,
		log.FieldCreated, last.Created)
	return nil
}
