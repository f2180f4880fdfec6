// Command bikeshare-etl provisions the analytics database, loads Capital
// Bikeshare trip history and Open-Meteo weather into it, and reports on the
// result.
//
// Usage:
//
//	bikeshare-etl run        # provision, load, grant read-only access
//	bikeshare-etl report     # yearly ride counts via the read-only role
//	bikeshare-etl teardown   # delete the RDS instance
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/bikeshare-etl/internal/config"
	"github.com/couchcryptid/bikeshare-etl/internal/observability"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "bikeshare-etl",
	Short:         "Load Capital Bikeshare trips and weather into PostgreSQL",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return loadEnvFile(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file with PGPW, ROUSRPW and other settings")
	rootCmd.AddCommand(runCmd, reportCmd, teardownCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadEnvFile applies a dotenv file if present. Variables already set in the
// environment take precedence.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
