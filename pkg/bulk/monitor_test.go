package bulk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// finishedJob registers a job and moves it straight to DONE at end.
func finishedJob(t *testing.T, m *Monitor, end time.Time) string {
	t.Helper()
	j := m.register("H", Operation{Action: ActionAdd})
	require.True(t, j.update(func(s *BulkStatus) {
		s.Status = StatusDone
		s.EndTime = &end
	}))
	m.finished(context.Background(), j)
	return j.snapshot().ID
}

func TestMonitor_StatusUnknownID(t *testing.T) {
	m := NewMonitor(nil)
	_, err := m.Status(context.Background(), "nope")

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMonitor_CancelUnknownID(t *testing.T) {
	m := NewMonitor(nil)
	err := m.Cancel(context.Background(), CancellationRequest{BulkStatusID: "nope", Reason: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMonitor_CancelReportsArchiveError(t *testing.T) {
	archive := newMapArchive()
	archive.loadErr = errors.New("archive offline")
	m := NewMonitor(archive)

	err := m.Cancel(context.Background(), CancellationRequest{BulkStatusID: "nope", Reason: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, archive.loadErr)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMonitor_SnapshotsAreIndependent(t *testing.T) {
	m := NewMonitor(nil)
	j := m.register("H", Operation{Action: ActionAdd})
	total := int64(5)
	j.update(func(s *BulkStatus) { s.TotalItems = &total })

	snap, err := m.Status(context.Background(), j.snapshot().ID)
	require.NoError(t, err)
	*snap.TotalItems = 99
	snap.ProcessedItems = 42

	again, err := m.Status(context.Background(), j.snapshot().ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), *again.TotalItems)
	assert.Equal(t, int64(0), again.ProcessedItems)
}

func TestMonitor_UpdateRejectedAfterTerminal(t *testing.T) {
	m := NewMonitor(nil)
	id := finishedJob(t, m, time.Now())
	j, ok := m.lookup(id)
	require.True(t, ok)

	applied := j.update(func(s *BulkStatus) { s.Status = StatusRunning })
	assert.False(t, applied)
	assert.Equal(t, StatusDone, j.snapshot().Status)
}

func TestMonitor_ListNewestFirst(t *testing.T) {
	m := NewMonitor(nil)
	first := m.register("H", Operation{Action: ActionAdd})
	time.Sleep(time.Millisecond)
	second := m.register("H", Operation{Action: ActionRemove})

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.snapshot().ID, list[0].ID)
	assert.Equal(t, first.snapshot().ID, list[1].ID)
}

func TestMonitor_PurgeFallsBackToArchive(t *testing.T) {
	ctx := context.Background()
	archive := newMapArchive()
	m := NewMonitor(archive)

	now := time.Now()
	old := finishedJob(t, m, now.Add(-2*time.Hour))
	recent := finishedJob(t, m, now)
	running := m.register("H", Operation{Action: ActionAdd})

	require.Equal(t, 2, archive.len())

	res, err := m.Purge(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Evicted)
	assert.Equal(t, int64(1), res.Archived)
	assert.Equal(t, 2, m.Len(), "recent and running jobs stay in memory")

	_, err = m.Status(ctx, old)
	assert.ErrorIs(t, err, ErrNotFound)

	status, err := m.Status(ctx, recent)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, status.Status)

	_, err = m.Status(ctx, running.snapshot().ID)
	assert.NoError(t, err)
}

func TestMonitor_EvictedStatusReadFromArchive(t *testing.T) {
	ctx := context.Background()
	archive := newMapArchive()
	m := NewMonitor(archive)

	id := finishedJob(t, m, time.Now())

	// Evict from memory only.
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()

	status, err := m.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, status.Status)

	// Cancelling an archived job is a no-op.
	assert.NoError(t, m.Cancel(ctx, CancellationRequest{BulkStatusID: id, Reason: "late"}))
}

func TestMonitor_PurgeExcess(t *testing.T) {
	ctx := context.Background()
	archive := newMapArchive()
	m := NewMonitor(archive)

	now := time.Now()
	var ids []string
	for i := range 5 {
		ids = append(ids, finishedJob(t, m, now.Add(time.Duration(i)*time.Minute)))
	}
	m.register("H", Operation{Action: ActionAdd})

	res, err := m.PurgeExcess(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Evicted)
	assert.Equal(t, int64(3), res.Archived)
	assert.Equal(t, 3, m.Len())

	for _, id := range ids[:3] {
		_, err := m.Status(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	for _, id := range ids[3:] {
		_, err := m.Status(ctx, id)
		assert.NoError(t, err)
	}
}

func TestMonitor_ArchiveFailureKeepsStatusInMemory(t *testing.T) {
	archive := newMapArchive()
	archive.saveErr = assert.AnError
	m := NewMonitor(archive)

	id := finishedJob(t, m, time.Now())

	status, err := m.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, status.Status)
}
