package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/holds/pkg/bulk"
)

// MemoryArchive implements bulk.Archive using an in-memory map.
// All data is lost when the process exits.
type MemoryArchive struct {
	mu       sync.RWMutex
	statuses map[string]bulk.BulkStatus
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		statuses: make(map[string]bulk.BulkStatus),
	}
}

// Save stores a terminal status, replacing any previous entry with the same id.
func (m *MemoryArchive) Save(ctx context.Context, status bulk.BulkStatus) error {
	if err := validateStatus(status); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.ID] = status.Clone()
	return nil
}

// Load returns the archived status for id.
func (m *MemoryArchive) Load(ctx context.Context, id string) (bulk.BulkStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.statuses[id]
	if !ok {
		return bulk.BulkStatus{}, false, nil
	}
	return s.Clone(), true, nil
}

// Delete removes statuses that ended before olderThan.
func (m *MemoryArchive) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.statuses {
		if s.EndTime.Before(olderThan) {
			delete(m.statuses, id)
			n++
		}
	}
	return n, nil
}

// DeleteExcess removes the oldest statuses until at most keep remain.
func (m *MemoryArchive) DeleteExcess(ctx context.Context, keep int64) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep cannot be negative")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	excess := int64(len(m.statuses)) - keep
	if excess <= 0 {
		return 0, nil
	}

	all := make([]bulk.BulkStatus, 0, len(m.statuses))
	for _, s := range m.statuses {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].EndTime.Before(*all[j].EndTime) })

	for _, s := range all[:excess] {
		delete(m.statuses, s.ID)
	}
	return excess, nil
}

// Len returns the number of archived statuses.
func (m *MemoryArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}

// Close is a no-op for the memory archive.
func (m *MemoryArchive) Close() error {
	return nil
}

func validateStatus(status bulk.BulkStatus) error {
	if status.ID == "" {
		return fmt.Errorf("bulk status id cannot be empty")
	}
	if !status.Status.IsTerminal() {
		return fmt.Errorf("bulk status %s is %s, only terminal statuses are archived", status.ID, status.Status)
	}
	if status.EndTime == nil {
		return fmt.Errorf("bulk status %s has no end time", status.ID)
	}
	return nil
}
