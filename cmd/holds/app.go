package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mercator-hq/holds/pkg/bulk"
	"mercator-hq/holds/pkg/bulk/retention"
	bulkstore "mercator-hq/holds/pkg/bulk/storage"
	"mercator-hq/holds/pkg/config"
	"mercator-hq/holds/pkg/content"
	"mercator-hq/holds/pkg/content/search"
	contentstore "mercator-hq/holds/pkg/content/storage"
	"mercator-hq/holds/pkg/frozen"
	"mercator-hq/holds/pkg/holds"
	"mercator-hq/holds/pkg/telemetry/health"
	"mercator-hq/holds/pkg/telemetry/metrics"
)

// app is the assembled service shared by the run and bulk commands.
type app struct {
	cfg *config.Config

	store     content.Store
	holds     *holds.Service
	search    *search.Engine
	archive   bulk.Archive
	monitor   *bulk.Monitor
	executor  *bulk.Executor
	pruner    *retention.Pruner
	collector *metrics.Collector
	health    *health.Checker
}

func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	slog.Info("initializing content repository", "backend", cfg.Repository.Backend)
	if a.store, err = openStore(&cfg.Repository); err != nil {
		return nil, err
	}
	if cfg.Repository.SeedFile != "" {
		if err := seedRepository(ctx, a.store, cfg.Repository.SeedFile); err != nil {
			return nil, fmt.Errorf("failed to seed repository: %w", err)
		}
	}

	a.holds = holds.NewService(a.store, frozen.NewCache(a.collector))
	a.search = search.NewEngine(a.store)

	if a.archive, err = openArchive(&cfg.Bulk.Archive); err != nil {
		return nil, err
	}
	a.monitor = bulk.NewMonitor(a.archive)
	a.executor = bulk.NewExecutor(a.search, a.holds, a.monitor, &bulk.Config{
		PageSize:          cfg.Bulk.PageSize,
		MaxConcurrentJobs: cfg.Bulk.MaxConcurrentJobs,
	}, a.collector)

	a.pruner = retention.NewPruner(a.monitor, retentionConfig(cfg))

	a.health = health.New(0, Version)
	a.health.RegisterCheck("repository", func(ctx context.Context) error {
		_, err := a.store.Holds(ctx)
		return err
	})
	if a.archive != nil {
		a.health.RegisterCheck("archive", func(ctx context.Context) error {
			_, _, err := a.archive.Load(ctx, "")
			return err
		})
	}

	return a, nil
}

// Close cancels unfinished bulk jobs and releases storage, in that order.
func (a *app) Close() error {
	var errs []error
	if a.pruner != nil {
		a.pruner.Stop()
	}
	if a.executor != nil {
		errs = append(errs, a.executor.Close())
	}
	if a.archive != nil {
		errs = append(errs, a.archive.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func openStore(cfg *config.RepositoryConfig) (content.Store, error) {
	switch cfg.Backend {
	case "memory":
		return contentstore.NewMemoryStore(), nil
	case "sqlite":
		if err := ensureDir(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		store, err := contentstore.NewSQLiteStore(&contentstore.SQLiteConfig{
			Path:              cfg.SQLite.Path,
			MaxOpenConns:      cfg.SQLite.MaxOpenConns,
			MaxIdleConns:      cfg.SQLite.MaxIdleConns,
			WALMode:           cfg.SQLite.WALMode,
			BusyTimeout:       cfg.SQLite.BusyTimeout,
			TxRetryMaxElapsed: cfg.SQLite.TxRetryMaxElapsed,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite repository: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported repository backend: %s", cfg.Backend)
	}
}

// openArchive returns a nil Archive for the "none" backend.
func openArchive(cfg *config.ArchiveConfig) (bulk.Archive, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "memory":
		return bulkstore.NewMemoryArchive(), nil
	case "sqlite":
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		archive, err := bulkstore.NewSQLiteArchiveWithConfig(bulkstore.SQLiteArchiveConfig{
			DBPath:      cfg.Path,
			BusyTimeout: cfg.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite archive: %w", err)
		}
		return archive, nil
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Backend)
	}
}

func ensureDir(file string) error {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

func retentionConfig(cfg *config.Config) *retention.Config {
	return &retention.Config{
		MaxAge:        cfg.Bulk.Retention.MaxAge,
		MaxStatuses:   cfg.Bulk.Retention.MaxStatuses,
		PurgeSchedule: cfg.Bulk.Retention.PurgeSchedule,
		ArchivePath:   cfg.Bulk.Retention.ArchivePath,
	}
}
