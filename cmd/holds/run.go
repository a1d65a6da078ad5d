package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/holds/pkg/bulk/retention"
	"mercator-hq/holds/pkg/cli"
	"mercator-hq/holds/pkg/config"
	"mercator-hq/holds/pkg/server"
	"mercator-hq/holds/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the holds API server",
	Long: `Start the holds API server with the specified configuration.

The server exposes hold membership, bulk job submission, status and
cancellation, and the frozen state of repository nodes.

Examples:
  # Start with default config
  holds run

  # Start with custom config
  holds run --config /etc/holds/config.yaml

  # Override listen address
  holds run --listen 0.0.0.0:8080

  # Validate config without starting server
  holds run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := setupLogging(&cfg.Telemetry.Logging)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, cancel := cli.SetupSignalHandler()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer a.Close()

	api := server.NewAPI(a.holds, a.executor, a.monitor)
	handler := api.Handler(server.Options{
		Health:      a.health.Handler(),
		Metrics:     a.collector.Handler(),
		MetricsPath: cfg.Telemetry.Metrics.Path,
	})
	srv := server.NewServer(&cfg.Server, handler)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start(gctx)
	})

	if err := a.pruner.Start(gctx); err != nil {
		slog.Warn("failed to start retention scheduler", "error", err)
	} else if next := a.pruner.NextPruning(); next != nil {
		slog.Debug("bulk status retention scheduler started", "next_pruning", next)
	}

	if cfg.Watch.Enabled && cfgFile != "" {
		watcher := config.NewWatcher(cfgFile, cfg.Watch.Debounce)
		g.Go(func() error {
			return watcher.Watch(gctx, func(next *config.Config) {
				applyReload(logger, a.pruner, next)
			})
		})
	}

	fmt.Fprintf(out, "Holds v%s\n", Version)
	fmt.Fprintf(out, "✓ Repository: %s\n", cfg.Repository.Backend)
	fmt.Fprintf(out, "✓ Bulk status archive: %s\n", cfg.Bulk.Archive.Backend)
	fmt.Fprintf(out, "✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := g.Wait(); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// applyReload applies the settings that can change without a restart.
func applyReload(logger *logging.Logger, pruner *retention.Pruner, next *config.Config) {
	if err := pruner.UpdateConfig(retentionConfig(next)); err != nil {
		slog.Warn("ignoring reloaded retention policy", "error", err)
	}

	level := next.Telemetry.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := logger.SetLevel(level); err != nil {
		slog.Warn("ignoring reloaded log level", "level", level, "error", err)
		return
	}
	slog.Info("configuration reloaded", "log_level", level)
}
