// Command spendwise runs the personal finance API and its maintenance tasks.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// envFile is an optional .env file loaded before the environment.
	envFile string

	rootCmd = &cobra.Command{
		Use:   "spendwise",
		Short: "Personal finance tracker backend",
		Long: `spendwise serves the JSON API for transactions, budgets, recurring rules
and analytics, and exposes the maintenance tasks that operate on the same store.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file")
	rootCmd.AddCommand(serveCmd, sweepCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
