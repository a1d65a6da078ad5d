package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"mercator-hq/holds/pkg/content"
	"mercator-hq/holds/pkg/content/search"
)

// Config contains configuration for the bulk executor.
type Config struct {
	// PageSize is the number of search results requested per page.
	// Default: 100
	PageSize int

	// MaxConcurrentJobs bounds how many jobs run at once. Jobs beyond the
	// bound stay QUEUED until a slot frees. 0 means unbounded.
	MaxConcurrentJobs int
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() *Config {
	return &Config{
		PageSize:          100,
		MaxConcurrentJobs: 0,
	}
}

// shutdownReason is recorded on jobs cancelled by Close.
const shutdownReason = "executor shutting down"

// Executor runs bulk add/remove jobs. Each job runs on its own goroutine and
// reports progress only through its status in the Monitor.
type Executor struct {
	searcher   Searcher
	membership Membership
	monitor    *Monitor
	config     *Config
	metrics    Metrics
	logger     *slog.Logger

	slots *semaphore.Weighted
	ctx   context.Context
	stop  context.CancelFunc
	wg    sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewExecutor creates an executor. metrics may be nil.
func NewExecutor(searcher Searcher, membership Membership, monitor *Monitor, config *Config, metrics Metrics) *Executor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultConfig().PageSize
	}

	ctx, stop := context.WithCancel(context.Background())
	e := &Executor{
		searcher:   searcher,
		membership: membership,
		monitor:    monitor,
		config:     config,
		metrics:    metrics,
		logger:     slog.Default().With("component", "bulk.executor"),
		ctx:        ctx,
		stop:       stop,
	}
	if config.MaxConcurrentJobs > 0 {
		e.slots = semaphore.NewWeighted(int64(config.MaxConcurrentJobs))
	}

	e.logger.Info("bulk executor initialized",
		"page_size", config.PageSize,
		"max_concurrent_jobs", config.MaxConcurrentJobs,
	)
	return e
}

// Monitor returns the status registry the executor reports to.
func (e *Executor) Monitor() *Monitor {
	return e.monitor
}

// Submit validates the request, registers a QUEUED status and starts the job
// asynchronously. It never waits for the job. Validation failures return a
// *ValidationError and create no job; after Close it returns ErrExecutorClosed.
func (e *Executor) Submit(ctx context.Context, hold content.NodeRef, op Operation) (BulkStatus, error) {
	if err := e.validate(ctx, hold, op); err != nil {
		return BulkStatus{}, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return BulkStatus{}, ErrExecutorClosed
	}
	j := e.monitor.register(hold, op)
	e.wg.Add(1)
	e.mu.Unlock()

	status := j.snapshot()

	if e.metrics != nil {
		e.metrics.RecordJobSubmitted(string(op.Action))
	}
	e.logger.Info("bulk job submitted",
		"bulk_status_id", status.ID,
		"hold", hold,
		"action", op.Action,
		"query", op.Query,
	)

	go e.run(j, hold, op)

	return status, nil
}

func (e *Executor) validate(ctx context.Context, hold content.NodeRef, op Operation) error {
	if !op.Action.IsValid() {
		return NewValidationError("action", fmt.Sprintf("unsupported action %q", op.Action))
	}
	if hold.IsZero() {
		return NewValidationError("hold", "hold reference is required")
	}
	if _, err := e.membership.Hold(ctx, hold); err != nil {
		if errors.Is(err, content.ErrHoldNotFound) {
			return &ValidationError{Field: "hold", Message: fmt.Sprintf("unknown hold %s", hold), Cause: err}
		}
		return fmt.Errorf("lookup hold %s: %w", hold, err)
	}
	if v, ok := e.searcher.(QueryValidator); ok {
		if err := v.ValidateQuery(op.Query); err != nil {
			return &ValidationError{Field: "query", Message: "malformed query", Cause: err}
		}
	}
	return nil
}

// run is the job body.
func (e *Executor) run(j *job, hold content.NodeRef, op Operation) {
	defer e.wg.Done()

	id := j.snapshot().ID
	logger := e.logger.With("bulk_status_id", id, "hold", hold, "action", op.Action)

	if e.slots != nil {
		if err := e.acquire(j); err != nil {
			e.cancelledWhileQueued(j, logger, err)
			return
		}
		defer e.slots.Release(1)
	}

	start := time.Now()
	j.update(func(s *BulkStatus) {
		s.Status = StatusRunning
		s.StartTime = &start
	})
	if e.metrics != nil {
		e.metrics.RecordJobStarted()
	}
	logger.Info("bulk job started")

	defer func() {
		if r := recover(); r != nil {
			e.fail(j, logger, &FatalJobError{JobID: id, Cause: fmt.Errorf("panic: %v", r)})
		}
		// e.ctx is already cancelled during Close.
		e.monitor.finished(context.WithoutCancel(e.ctx), j)
	}()

	if err := e.process(j, hold, op, logger); err != nil {
		if req := j.cancellation(); req != nil && errors.Is(err, context.Canceled) {
			e.cancelled(j, logger, req)
			return
		}
		e.fail(j, logger, err)
		return
	}
}

// acquire waits for a run slot. The wait ends early when the job is
// cancelled or the executor closes.
func (e *Executor) acquire(j *job) error {
	ctx, cancel := context.WithCancel(e.ctx)
	defer cancel()
	stop := context.AfterFunc(j.interrupted, cancel)
	defer stop()

	return e.slots.Acquire(ctx, 1)
}

// cancelledWhileQueued ends a job that never got a run slot. Close flags
// every unfinished job before it stops e.ctx, so a cancellation request is
// always present here.
func (e *Executor) cancelledWhileQueued(j *job, logger *slog.Logger, err error) {
	if req := j.cancellation(); req != nil {
		e.cancelled(j, logger, req)
	} else {
		e.fail(j, logger, &FatalJobError{JobID: j.snapshot().ID, Cause: err})
	}
	e.monitor.finished(context.WithoutCancel(e.ctx), j)
}

// process pages through the search results and handles every item. It
// returns a *FatalJobError if the search collaborator fails; per-item
// failures are counted and never returned.
func (e *Executor) process(j *job, hold content.NodeRef, op Operation, logger *slog.Logger) error {
	id := j.snapshot().ID
	seen := make(map[content.NodeRef]struct{})
	skip := 0
	first := true

	for {
		if req := j.cancellation(); req != nil {
			e.cancelled(j, logger, req)
			return nil
		}

		page, err := e.searcher.Search(e.ctx, search.Request{
			Query:     op.Query,
			SkipCount: skip,
			MaxItems:  e.config.PageSize,
		})
		if err != nil {
			return &FatalJobError{JobID: id, Cause: fmt.Errorf("search page at offset %d: %w", skip, err)}
		}

		if first {
			total := page.NumberFound
			j.update(func(s *BulkStatus) { s.TotalItems = &total })
			first = false
		}

		logger.Debug("search page fetched",
			"skip_count", skip,
			"items", len(page.Items),
			"has_more", page.HasMore,
		)

		for _, item := range page.Items {
			if req := j.cancellation(); req != nil {
				e.cancelled(j, logger, req)
				return nil
			}

			// Results can drift between pages; an item seen before has
			// already been handled.
			if _, dup := seen[item]; dup {
				logger.Debug("skipping item already handled by this job", "item", item)
				continue
			}
			seen[item] = struct{}{}

			e.processItem(j, hold, op, item, logger)
		}

		skip += len(page.Items)
		if !page.HasMore || len(page.Items) == 0 {
			break
		}
	}

	e.done(j, logger)
	return nil
}

// processItem classifies and applies the membership change for one item.
func (e *Executor) processItem(j *job, hold content.NodeRef, op Operation, item content.NodeRef, logger *slog.Logger) {
	// An item that has started is finished even while Close is stopping
	// the executor; shutdown takes effect at the next check point.
	ctx := context.WithoutCancel(e.ctx)

	kind, err := e.membership.Classify(ctx, item)
	if err == nil && Classify(kind) == ItemUnsupported {
		logger.Debug("skipping unsupported item", "item", item, "kind", kind)
		return
	}

	if err == nil {
		holds := []content.NodeRef{hold}
		items := []content.NodeRef{item}
		switch op.Action {
		case ActionAdd:
			err = e.membership.AddToHolds(ctx, holds, items)
		case ActionRemove:
			err = e.membership.RemoveFromHolds(ctx, holds, items)
		}
	}

	failed := err != nil
	if failed {
		nodeErr := &PerNodeError{JobID: j.snapshot().ID, Item: item, Action: op.Action, Cause: err}
		logger.Warn("bulk item failed", "item", item, "error", nodeErr)
	}

	j.update(func(s *BulkStatus) {
		s.ProcessedItems++
		if failed {
			s.ErrorsCount++
		}
	})
	if e.metrics != nil {
		e.metrics.RecordItemProcessed(string(op.Action), failed)
	}
}

func (e *Executor) done(j *job, logger *slog.Logger) {
	e.finish(j, logger, func(s *BulkStatus) {
		s.Status = StatusDone
	})
}

func (e *Executor) cancelled(j *job, logger *slog.Logger, req *CancellationRequest) {
	e.finish(j, logger, func(s *BulkStatus) {
		s.Status = StatusCancelled
		s.CancellationReason = req.Reason
	})
}

func (e *Executor) fail(j *job, logger *slog.Logger, err error) {
	e.finish(j, logger, func(s *BulkStatus) {
		s.Status = StatusError
		s.FailureReason = err.Error()
	})
}

// finish applies the terminal transition exactly once.
func (e *Executor) finish(j *job, logger *slog.Logger, fn func(s *BulkStatus)) {
	end := time.Now()
	applied := j.update(func(s *BulkStatus) {
		fn(s)
		s.EndTime = &end
	})
	if !applied {
		return
	}

	s := j.snapshot()
	var duration time.Duration
	if s.StartTime != nil {
		duration = end.Sub(*s.StartTime)
	}

	attrs := []any{
		"status", s.Status,
		"processed_items", s.ProcessedItems,
		"errors_count", s.ErrorsCount,
		"duration", duration,
	}
	switch s.Status {
	case StatusError:
		logger.Error("bulk job failed", append(attrs, "error", s.FailureReason)...)
	case StatusCancelled:
		logger.Info("bulk job cancelled", append(attrs, "reason", s.CancellationReason)...)
	default:
		logger.Info("bulk job completed", attrs...)
	}

	if e.metrics != nil {
		if s.StartTime == nil {
			e.metrics.RecordJobNeverStarted(string(s.Status))
		} else {
			e.metrics.RecordJobFinished(string(s.Status), duration)
		}
	}
}

// Wait blocks until every submitted job has reached a terminal state.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Close requests cancellation of every unfinished job and waits for them to
// stop. Statuses remain readable through the Monitor.
func (e *Executor) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.logger.Info("shutting down bulk executor")
		e.monitor.cancelAll(shutdownReason)
		e.stop()
		e.wg.Wait()
		e.logger.Info("bulk executor shut down complete")
	})
	return nil
}
