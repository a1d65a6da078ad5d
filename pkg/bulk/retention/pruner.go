package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/holds/pkg/bulk"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// MaxAge is how long a terminal status is kept after it ends.
	// 0 disables age-based pruning.
	MaxAge time.Duration

	// MaxStatuses is the maximum number of terminal statuses to keep.
	// 0 means unlimited.
	MaxStatuses int64

	// PurgeSchedule is a cron expression for scheduling pruning.
	// Example: "*/15 * * * *" (every 15 minutes)
	PurgeSchedule string

	// ArchivePath is a directory that receives a JSON copy of every purged
	// status. Empty disables archiving.
	ArchivePath string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAge:        24 * time.Hour,
		MaxStatuses:   10000,
		PurgeSchedule: "*/15 * * * *",
	}
}

// Registry is the part of bulk.Monitor the pruner needs.
type Registry interface {
	List() []bulk.BulkStatus
	Purge(ctx context.Context, olderThan time.Time) (bulk.PurgeResult, error)
	PurgeExcess(ctx context.Context, keep int64) (bulk.PurgeResult, error)
}

// Result reports what one pruning cycle removed.
type Result struct {
	Evicted  int64
	Archived int64
}

func (r *Result) add(p bulk.PurgeResult) {
	r.Evicted += p.Evicted
	r.Archived += p.Archived
}

// Pruner enforces retention policies on bulk statuses.
type Pruner struct {
	registry  Registry
	mu        sync.RWMutex
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
}

// NewPruner creates a new retention pruner.
func NewPruner(registry Registry, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	cfg := *config
	p := &Pruner{
		registry: registry,
		config:   &cfg,
		logger:   slog.Default().With("component", "bulk.retention"),
		now:      time.Now,
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Config returns a copy of the policy in effect.
func (p *Pruner) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return *p.config
}

// UpdateConfig replaces the retention policy. The next Prune uses the new
// limits, and a changed PurgeSchedule replaces the scheduled cron entry of a
// started pruner. An invalid schedule leaves the current policy in place.
func (p *Pruner) UpdateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("retention config is nil")
	}
	if config.PurgeSchedule != "" {
		if _, err := cron.ParseStandard(config.PurgeSchedule); err != nil {
			return fmt.Errorf("invalid cron schedule %q: %w", config.PurgeSchedule, err)
		}
	}

	cfg := *config
	p.mu.Lock()
	previous := p.config.PurgeSchedule
	p.config = &cfg
	p.mu.Unlock()

	p.logger.Info("retention policy updated",
		"max_age", cfg.MaxAge,
		"max_statuses", cfg.MaxStatuses,
		"schedule", cfg.PurgeSchedule,
	)

	if cfg.PurgeSchedule == previous {
		return nil
	}
	return p.scheduler.Reschedule(cfg.PurgeSchedule)
}

// Prune purges statuses older than MaxAge, then the oldest statuses beyond
// MaxStatuses.
func (p *Pruner) Prune(ctx context.Context) (Result, error) {
	cfg := p.Config()
	var total Result

	if cfg.MaxAge > 0 {
		res, err := p.pruneByAge(ctx, cfg)
		total.add(res)
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		p.logger.Debug("pruned statuses by age",
			"evicted", res.Evicted,
			"archived", res.Archived,
			"max_age", cfg.MaxAge,
		)
	}

	if cfg.MaxStatuses > 0 {
		res, err := p.pruneByCount(ctx, cfg)
		total.add(res)
		if err != nil {
			return total, fmt.Errorf("prune by count failed: %w", err)
		}
		p.logger.Debug("pruned statuses by count",
			"evicted", res.Evicted,
			"archived", res.Archived,
			"max_statuses", cfg.MaxStatuses,
		)
	}

	if total.Evicted > 0 || total.Archived > 0 {
		p.logger.Info("bulk status pruning completed",
			"evicted", total.Evicted,
			"archived", total.Archived,
		)
	}

	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context, cfg Config) (bulk.PurgeResult, error) {
	cutoff := p.now().Add(-cfg.MaxAge)

	var expired []bulk.BulkStatus
	for _, s := range terminal(p.registry.List()) {
		if s.EndTime.Before(cutoff) {
			expired = append(expired, s)
		}
	}
	if err := p.export(cfg.ArchivePath, expired, "age"); err != nil {
		return bulk.PurgeResult{}, err
	}

	return p.registry.Purge(ctx, cutoff)
}

func (p *Pruner) pruneByCount(ctx context.Context, cfg Config) (bulk.PurgeResult, error) {
	statuses := terminal(p.registry.List())
	if excess := int64(len(statuses)) - cfg.MaxStatuses; excess > 0 {
		sort.Slice(statuses, func(i, j int) bool { return statuses[i].EndTime.Before(*statuses[j].EndTime) })
		if err := p.export(cfg.ArchivePath, statuses[:excess], "count"); err != nil {
			return bulk.PurgeResult{}, err
		}
	}

	return p.registry.PurgeExcess(ctx, cfg.MaxStatuses)
}

// export writes statuses to a JSON file under dir.
func (p *Pruner) export(dir string, statuses []bulk.BulkStatus, policy string) error {
	if dir == "" || len(statuses) == 0 {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := fmt.Sprintf("bulk-statuses-%s-%s.json", policy, p.now().Format("2006-01-02-150405.000"))
	archiveFile := filepath.Join(dir, name)

	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal statuses: %w", err)
	}
	if err := os.WriteFile(archiveFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write archive file: %w", err)
	}

	p.logger.Info("bulk statuses archived",
		"archive_file", archiveFile,
		"status_count", len(statuses),
	)
	return nil
}

func terminal(statuses []bulk.BulkStatus) []bulk.BulkStatus {
	out := statuses[:0]
	for _, s := range statuses {
		if s.Status.IsTerminal() && s.EndTime != nil {
			out = append(out, s)
		}
	}
	return out
}

// Start starts the automatic pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
