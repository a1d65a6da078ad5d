package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/holds/pkg/bulk"
)

func archives(t *testing.T) map[string]bulk.Archive {
	t.Helper()

	sqlite, err := NewSQLiteArchive(filepath.Join(t.TempDir(), "bulk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]bulk.Archive{
		"memory": NewMemoryArchive(),
		"sqlite": sqlite,
	}
}

func doneStatus(id string, end time.Time) bulk.BulkStatus {
	total := int64(3)
	start := end.Add(-time.Second)
	return bulk.BulkStatus{
		ID:             id,
		Hold:           "hold-1",
		Query:          "type:record",
		Action:         bulk.ActionAdd,
		Status:         bulk.StatusDone,
		TotalItems:     &total,
		ProcessedItems: 3,
		SubmittedTime:  start,
		StartTime:      &start,
		EndTime:        &end,
	}
}

func TestArchive_SaveAndLoad(t *testing.T) {
	for name, archive := range archives(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			end := time.Now().UTC().Truncate(time.Millisecond)
			want := doneStatus("job-1", end)

			require.NoError(t, archive.Save(ctx, want))

			got, ok, err := archive.Load(ctx, "job-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want.ID, got.ID)
			assert.Equal(t, want.Hold, got.Hold)
			assert.Equal(t, want.Status, got.Status)
			assert.Equal(t, want.ProcessedItems, got.ProcessedItems)
			require.NotNil(t, got.TotalItems)
			assert.Equal(t, int64(3), *got.TotalItems)
			require.NotNil(t, got.EndTime)
			assert.True(t, end.Equal(*got.EndTime))

			_, ok, err = archive.Load(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestArchive_SaveReplaces(t *testing.T) {
	for name, archive := range archives(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := doneStatus("job-1", time.Now())
			require.NoError(t, archive.Save(ctx, s))

			s.Status = bulk.StatusCancelled
			s.CancellationReason = "stop"
			require.NoError(t, archive.Save(ctx, s))

			got, ok, err := archive.Load(ctx, "job-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, bulk.StatusCancelled, got.Status)
			assert.Equal(t, "stop", got.CancellationReason)
		})
	}
}

func TestArchive_RejectsNonTerminal(t *testing.T) {
	for name, archive := range archives(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			running := doneStatus("job-1", time.Now())
			running.Status = bulk.StatusRunning
			assert.Error(t, archive.Save(ctx, running))

			noEnd := doneStatus("job-2", time.Now())
			noEnd.EndTime = nil
			assert.Error(t, archive.Save(ctx, noEnd))

			assert.Error(t, archive.Save(ctx, doneStatus("", time.Now())))
		})
	}
}

func TestArchive_Delete(t *testing.T) {
	for name, archive := range archives(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			require.NoError(t, archive.Save(ctx, doneStatus("old", now.Add(-2*time.Hour))))
			require.NoError(t, archive.Save(ctx, doneStatus("new", now)))

			n, err := archive.Delete(ctx, now.Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			_, ok, err := archive.Load(ctx, "old")
			require.NoError(t, err)
			assert.False(t, ok)
			_, ok, err = archive.Load(ctx, "new")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestArchive_DeleteExcess(t *testing.T) {
	for name, archive := range archives(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			for i, id := range []string{"a", "b", "c", "d"} {
				require.NoError(t, archive.Save(ctx, doneStatus(id, now.Add(time.Duration(i)*time.Minute))))
			}

			n, err := archive.DeleteExcess(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			for id, want := range map[string]bool{"a": false, "b": false, "c": true, "d": true} {
				_, ok, err := archive.Load(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, want, ok, id)
			}

			n, err = archive.DeleteExcess(ctx, 10)
			require.NoError(t, err)
			assert.Zero(t, n)

			_, err = archive.DeleteExcess(ctx, -1)
			assert.Error(t, err)
		})
	}
}

func TestSQLiteArchive_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bulk.db")

	archive, err := NewSQLiteArchive(path)
	require.NoError(t, err)
	require.NoError(t, archive.Save(ctx, doneStatus("job-1", time.Now())))
	require.NoError(t, archive.Close())
	require.NoError(t, archive.Close(), "close is idempotent")

	archive, err = NewSQLiteArchive(path)
	require.NoError(t, err)
	defer archive.Close()

	_, ok, err := archive.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewSQLiteArchive_EmptyPath(t *testing.T) {
	_, err := NewSQLiteArchive("")
	assert.Error(t, err)
}
