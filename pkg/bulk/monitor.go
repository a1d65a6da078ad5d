package bulk

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/holds/pkg/content"
)

// job is the registry entry for one bulk job. The executor goroutine running
// the job is the only writer of status; readers take snapshots.
type job struct {
	mu     sync.RWMutex
	status BulkStatus

	// cancel is the cooperative cancellation flag polled by the executor.
	cancel atomic.Pointer[CancellationRequest]

	// interrupted is done once cancel is set or the job has finished. It
	// wakes a job that is still waiting for a run slot.
	interrupted context.Context
	interrupt   context.CancelFunc
}

func newJob(status BulkStatus) *job {
	j := &job{status: status}
	j.interrupted, j.interrupt = context.WithCancel(context.Background())
	return j
}

func (j *job) snapshot() BulkStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status.Clone()
}

// update applies fn unless the job is already terminal. It reports whether
// fn ran.
func (j *job) update(fn func(s *BulkStatus)) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Status.IsTerminal() {
		return false
	}
	fn(&j.status)
	return true
}

func (j *job) cancellation() *CancellationRequest {
	return j.cancel.Load()
}

// requestCancel sets the cancellation flag unless one is already set. It
// reports whether req was recorded.
func (j *job) requestCancel(req *CancellationRequest) bool {
	if !j.cancel.CompareAndSwap(nil, req) {
		return false
	}
	j.interrupt()
	return true
}

// Monitor is the registry of bulk job statuses. It is an explicit,
// constructed value; callers own its lifecycle.
type Monitor struct {
	mu      sync.RWMutex
	jobs    map[string]*job
	archive Archive
	logger  *slog.Logger
}

// NewMonitor creates an empty registry. archive may be nil.
func NewMonitor(archive Archive) *Monitor {
	return &Monitor{
		jobs:    make(map[string]*job),
		archive: archive,
		logger:  slog.Default().With("component", "bulk.monitor"),
	}
}

// register creates a QUEUED entry for a new job.
func (m *Monitor) register(hold content.NodeRef, op Operation) *job {
	j := newJob(BulkStatus{
		ID:            uuid.NewString(),
		Hold:          hold,
		Query:         op.Query,
		Action:        op.Action,
		Status:        StatusQueued,
		SubmittedTime: time.Now(),
	})

	m.mu.Lock()
	m.jobs[j.status.ID] = j
	m.mu.Unlock()

	return j
}

func (m *Monitor) lookup(id string) (*job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	return j, ok
}

// Status returns a snapshot of the job's status. Statuses evicted from
// memory are looked up in the archive.
func (m *Monitor) Status(ctx context.Context, id string) (BulkStatus, error) {
	if j, ok := m.lookup(id); ok {
		return j.snapshot(), nil
	}

	if m.archive != nil {
		status, ok, err := m.archive.Load(ctx, id)
		if err != nil {
			return BulkStatus{}, err
		}
		if ok {
			return status, nil
		}
	}

	return BulkStatus{}, &NotFoundError{ID: id}
}

// List returns snapshots of every status held in memory, newest first.
func (m *Monitor) List() []BulkStatus {
	m.mu.RLock()
	out := make([]BulkStatus, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool { return out[i].SubmittedTime.After(out[k].SubmittedTime) })
	return out
}

// Cancel records a cancellation request. The job stops at its next check
// point; Cancel does not wait for it. Cancelling a terminal job is a no-op,
// and only the first request's reason is kept.
func (m *Monitor) Cancel(ctx context.Context, req CancellationRequest) error {
	j, ok := m.lookup(req.BulkStatusID)
	if !ok {
		if m.archive != nil {
			_, archived, err := m.archive.Load(ctx, req.BulkStatusID)
			if err != nil {
				return err
			}
			if archived {
				return nil
			}
		}
		return &NotFoundError{ID: req.BulkStatusID}
	}

	if j.snapshot().Status.IsTerminal() {
		m.logger.Debug("cancel ignored, job already terminal", "bulk_status_id", req.BulkStatusID)
		return nil
	}

	r := req
	if j.requestCancel(&r) {
		m.logger.Info("bulk job cancellation requested",
			"bulk_status_id", req.BulkStatusID,
			"reason", req.Reason,
		)
	}
	return nil
}

// cancelAll flags every non-terminal job for cancellation.
func (m *Monitor) cancelAll(reason string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, j := range m.jobs {
		if j.snapshot().Status.IsTerminal() {
			continue
		}
		j.requestCancel(&CancellationRequest{BulkStatusID: id, Reason: reason})
	}
}

// finished is called by the executor once a job reaches a terminal state.
func (m *Monitor) finished(ctx context.Context, j *job) {
	j.interrupt()
	if m.archive == nil {
		return
	}
	status := j.snapshot()
	if err := m.archive.Save(ctx, status); err != nil {
		m.logger.Error("failed to archive bulk status",
			"bulk_status_id", status.ID,
			"error", err,
		)
	}
}

// PurgeResult reports how many statuses a purge removed.
type PurgeResult struct {
	Evicted  int64 // Removed from the in-memory registry
	Archived int64 // Removed from the archive
}

// Purge evicts terminal statuses whose EndTime is before olderThan, from
// memory and from the archive. Running and queued jobs are never evicted.
func (m *Monitor) Purge(ctx context.Context, olderThan time.Time) (PurgeResult, error) {
	var res PurgeResult

	m.mu.Lock()
	for id, j := range m.jobs {
		s := j.snapshot()
		if s.Status.IsTerminal() && s.EndTime != nil && s.EndTime.Before(olderThan) {
			delete(m.jobs, id)
			res.Evicted++
		}
	}
	m.mu.Unlock()

	if m.archive != nil {
		n, err := m.archive.Delete(ctx, olderThan)
		if err != nil {
			return res, err
		}
		res.Archived = n
	}

	return res, nil
}

// PurgeExcess evicts the oldest terminal statuses from memory until at most
// keep remain, and trims the archive to its newest keep entries.
func (m *Monitor) PurgeExcess(ctx context.Context, keep int64) (PurgeResult, error) {
	var res PurgeResult

	m.mu.Lock()
	var terminal []BulkStatus
	for _, j := range m.jobs {
		if s := j.snapshot(); s.Status.IsTerminal() && s.EndTime != nil {
			terminal = append(terminal, s)
		}
	}
	if excess := int64(len(terminal)) - keep; excess > 0 {
		sort.Slice(terminal, func(i, k int) bool { return terminal[i].EndTime.Before(*terminal[k].EndTime) })
		for _, s := range terminal[:excess] {
			delete(m.jobs, s.ID)
			res.Evicted++
		}
	}
	m.mu.Unlock()

	if m.archive != nil {
		n, err := m.archive.DeleteExcess(ctx, keep)
		if err != nil {
			return res, err
		}
		res.Archived = n
	}

	return res, nil
}

// Len returns the number of statuses held in memory.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}
