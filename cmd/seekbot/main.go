package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/seekdata/seekbot/internal/config"
	"github.com/seekdata/seekbot/internal/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "seekbot",
	Short:         "Archive ingestion and record lookup service",
	Long:          "Seekbot loads CSV archives (zip, rar, 7z) into a searchable record store and serves lookups over Telegram and the command line.",
	SilenceErrors: true,
	SilenceUsage:  true,
	// No Run — prints help by default.
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(searchCmd)
}

// loadConfig reads .env, loads configuration, and sets up logging. Every
// subcommand starts here.
func loadConfig() (*config.Config, error) {
	// Overload overwrites existing env vars with .env values.
	if err := godotenv.Overload(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
