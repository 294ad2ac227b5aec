package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"spendwise/internal/backend"
	"spendwise/internal/cli"
	"spendwise/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQLite schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadAndValidateConfig(envFile)
		if err != nil {
			return err
		}
		logger := cli.SetupLogger(cfg)
		if cfg.DataBackend != string(backend.SQLiteBackend) {
			return fmt.Errorf("migrate requires the sqlite backend, got %q", cfg.DataBackend)
		}

		version, err := storage.RunMigrations(cfg.SQLiteDBPath)
		if err != nil {
			return err
		}
		logger.Info("Database migrated", "path", cfg.SQLiteDBPath, "version", version)
		fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
		return nil
	},
}
