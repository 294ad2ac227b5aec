package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spendwise/internal/cli"
	"spendwise/internal/core"
)

var (
	sweepUser string
	sweepAsOf string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Materialize due recurring transactions once",
	Long: `sweep runs the recurring engine once, for a single user with --user or for
every user that owns an active rule, and prints the report as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := parseAsOf(sweepAsOf, time.Now())
		if err != nil {
			return err
		}

		cfg, err := cli.LoadAndValidateConfig(envFile)
		if err != nil {
			return err
		}
		logger := cli.SetupLogger(cfg)
		app, err := cli.NewApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		var report any
		if sweepUser != "" {
			r := app.Processor.RunFor(cmd.Context(), sweepUser, asOf)
			if r.Err != nil {
				return r.Err
			}
			report = r
		} else {
			r, err := app.Processor.SweepAll(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			report = r
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

// parseAsOf reads a YYYY-MM-DD day; empty means today.
func parseAsOf(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: %w", s, err)
	}
	return d.Time, nil
}

func init() {
	sweepCmd.Flags().StringVar(&sweepUser, "user", "", "only run the rules of this user id")
	sweepCmd.Flags().StringVar(&sweepAsOf, "as-of", "", "day to run as, YYYY-MM-DD (default today)")
}
