package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the pruner on a cron schedule.
type Scheduler struct {
	pruner  *Pruner
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	ctx     context.Context
	entry   cron.EntryID
	started bool
	stopped bool
	running bool
}

// NewScheduler creates a new retention scheduler.
func NewScheduler(pruner *Pruner) *Scheduler {
	return &Scheduler{
		pruner: pruner,
		cron:   cron.New(),
		logger: slog.Default().With("component", "bulk.retention.scheduler"),
	}
}

// Start schedules pruning using the pruner's PurgeSchedule. An empty
// schedule leaves the scheduler idle until Reschedule supplies one. The
// scheduler stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("retention scheduler already started")
	}

	cfg := s.pruner.Config()
	if cfg.PurgeSchedule == "" {
		s.logger.Info("purge schedule not configured, skipping scheduler")
	} else if err := s.schedule(ctx, cfg.PurgeSchedule); err != nil {
		return err
	}

	s.ctx = ctx
	s.started = true
	if s.running {
		s.logger.Info("retention scheduler started",
			"schedule", cfg.PurgeSchedule,
			"max_age", cfg.MaxAge,
			"max_statuses", cfg.MaxStatuses,
		)
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Reschedule replaces the cron entry of a started scheduler. An empty
// schedule removes it. Before Start or after Stop it does nothing.
func (s *Scheduler) Reschedule(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return nil
	}

	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	if schedule == "" {
		s.logger.Info("purge schedule cleared, pruning paused")
		return nil
	}
	if err := s.schedule(s.ctx, schedule); err != nil {
		return err
	}
	s.logger.Info("retention scheduler rescheduled", "schedule", schedule)
	return nil
}

// schedule registers the pruning entry and starts cron. s.mu must be held.
func (s *Scheduler) schedule(ctx context.Context, schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	id, err := s.cron.AddFunc(schedule, func() { s.runPruning(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}
	s.entry = id

	if !s.running {
		s.cron.Start()
		s.running = true
	}
	return nil
}

func (s *Scheduler) runPruning(ctx context.Context) {
	res, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	s.logger.Debug("scheduled pruning completed",
		"evicted", res.Evicted,
		"archived", res.Archived,
	)
}

// Stop stops the scheduler and waits for a running prune to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pruning time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
