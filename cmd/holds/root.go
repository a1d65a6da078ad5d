package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/holds/pkg/cli"
	"mercator-hq/holds/pkg/config"
	"mercator-hq/holds/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "holds",
	Short: "Holds - legal and retention hold service",
	Long: `Holds manages legal and retention holds over a content repository.

It provides:
  - Hold membership with inherited freezing of container children
  - Asynchronous bulk add/remove jobs driven by search queries
  - Cooperative cancellation and progress reporting for bulk jobs
  - A cached count of frozen children on every container`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults are used when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig initializes the process-wide configuration from --config and
// the HOLDS_* environment.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("config", "failed to load config", err)
	}
	cfg := config.GetConfig()
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogging installs the configured logger as the slog default. It must
// run before any component is constructed, since components capture
// slog.Default() at construction.
func setupLogging(cfg *config.LoggingConfig) (*logging.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:     cfg.Level,
		Format:    cfg.Format,
		AddSource: cfg.AddSource,
		NoColor:   cfg.NoColor,
	})
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", "invalid logging configuration", err)
	}
	slog.SetDefault(logger.Logger)
	return logger, nil
}
