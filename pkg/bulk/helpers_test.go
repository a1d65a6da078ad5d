package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mercator-hq/holds/pkg/content"
	"mercator-hq/holds/pkg/content/search"
)

type searchFunc func(ctx context.Context, req search.Request) (*search.Page, error)

func (f searchFunc) Search(ctx context.Context, req search.Request) (*search.Page, error) {
	return f(ctx, req)
}

// sliceSearch pages through a fixed result set.
func sliceSearch(items []content.NodeRef) searchFunc {
	return func(ctx context.Context, req search.Request) (*search.Page, error) {
		page := &search.Page{NumberFound: int64(len(items))}
		if req.SkipCount >= len(items) {
			return page, nil
		}
		end := min(req.SkipCount+req.MaxItems, len(items))
		page.Items = items[req.SkipCount:end]
		page.HasMore = end < len(items)
		return page, nil
	}
}

type validatingSearcher struct {
	searchFunc
}

func (validatingSearcher) ValidateQuery(query string) error {
	if query == "bad" {
		return errors.New("syntax error")
	}
	return nil
}

func refsN(prefix string, n int) []content.NodeRef {
	out := make([]content.NodeRef, n)
	for i := range out {
		out[i] = content.NodeRef(fmt.Sprintf("%s-%03d", prefix, i))
	}
	return out
}

// fakeMembership records membership calls. Items are records unless listed
// in kinds.
type fakeMembership struct {
	mu      sync.Mutex
	holds   map[content.NodeRef]bool
	kinds   map[content.NodeRef]content.Kind
	fail    map[content.NodeRef]error
	panicOn content.NodeRef
	added   map[content.NodeRef][]content.NodeRef
	removed map[content.NodeRef][]content.NodeRef

	entered chan content.NodeRef // receives every item before it is applied
	block   chan struct{}        // when set, every apply waits for it to close
}

func newFakeMembership(holds ...content.NodeRef) *fakeMembership {
	m := &fakeMembership{
		holds:   map[content.NodeRef]bool{},
		kinds:   map[content.NodeRef]content.Kind{},
		fail:    map[content.NodeRef]error{},
		added:   map[content.NodeRef][]content.NodeRef{},
		removed: map[content.NodeRef][]content.NodeRef{},
	}
	for _, h := range holds {
		m.holds[h] = true
	}
	return m
}

func (m *fakeMembership) Hold(ctx context.Context, ref content.NodeRef) (*content.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.holds[ref] {
		return nil, fmt.Errorf("hold %s: %w", ref, content.ErrHoldNotFound)
	}
	return &content.Hold{Ref: ref, Name: string(ref)}, nil
}

func (m *fakeMembership) Classify(ctx context.Context, item content.NodeRef) (content.Kind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.kinds[item]; ok {
		return k, nil
	}
	return content.KindRecord, nil
}

func (m *fakeMembership) AddToHolds(ctx context.Context, holds, items []content.NodeRef) error {
	return m.apply(ctx, holds, items, m.added)
}

func (m *fakeMembership) RemoveFromHolds(ctx context.Context, holds, items []content.NodeRef) error {
	return m.apply(ctx, holds, items, m.removed)
}

func (m *fakeMembership) apply(ctx context.Context, holds, items []content.NodeRef, into map[content.NodeRef][]content.NodeRef) error {
	if m.entered != nil {
		m.entered <- items[0]
	}
	if m.block != nil {
		<-m.block
	}
	// Like a real store, refuse to start a transaction on a done context.
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		if item == m.panicOn {
			panic("membership exploded")
		}
		if err := m.fail[item]; err != nil {
			return err
		}
		for _, h := range holds {
			into[h] = append(into[h], item)
		}
	}
	return nil
}

func (m *fakeMembership) addedTo(hold content.NodeRef) []content.NodeRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]content.NodeRef(nil), m.added[hold]...)
}

type fakeMetrics struct {
	mu        sync.Mutex
	submitted int
	started   int
	finished  map[string]int
	items     int
	failed    int

	neverStarted int
}

func (m *fakeMetrics) RecordJobSubmitted(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted++
}

func (m *fakeMetrics) RecordJobStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *fakeMetrics) RecordJobFinished(status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished == nil {
		m.finished = map[string]int{}
	}
	m.finished[status]++
}

func (m *fakeMetrics) RecordJobNeverStarted(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished == nil {
		m.finished = map[string]int{}
	}
	m.finished[status]++
	m.neverStarted++
}

func (m *fakeMetrics) RecordItemProcessed(action string, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items++
	if failed {
		m.failed++
	}
}

// mapArchive is an in-test Archive.
type mapArchive struct {
	mu       sync.Mutex
	statuses map[string]BulkStatus
	saveErr  error
	loadErr  error
}

func newMapArchive() *mapArchive {
	return &mapArchive{statuses: map[string]BulkStatus{}}
}

func (a *mapArchive) Save(ctx context.Context, status BulkStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saveErr != nil {
		return a.saveErr
	}
	a.statuses[status.ID] = status.Clone()
	return nil
}

func (a *mapArchive) Load(ctx context.Context, id string) (BulkStatus, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loadErr != nil {
		return BulkStatus{}, false, a.loadErr
	}
	s, ok := a.statuses[id]
	return s, ok, nil
}

func (a *mapArchive) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var n int64
	for id, s := range a.statuses {
		if s.EndTime.Before(olderThan) {
			delete(a.statuses, id)
			n++
		}
	}
	return n, nil
}

func (a *mapArchive) DeleteExcess(ctx context.Context, keep int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var n int64
	for int64(len(a.statuses)) > keep {
		var oldest string
		for id, s := range a.statuses {
			if oldest == "" || s.EndTime.Before(*a.statuses[oldest].EndTime) {
				oldest = id
			}
		}
		delete(a.statuses, oldest)
		n++
	}
	return n, nil
}

func (a *mapArchive) Close() error { return nil }

func (a *mapArchive) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.statuses)
}

// waitTerminal polls until the job is terminal and returns its status.
func waitTerminal(t *testing.T, m *Monitor, id string) BulkStatus {
	t.Helper()
	var status BulkStatus
	require.Eventually(t, func() bool {
		s, err := m.Status(context.Background(), id)
		if err != nil {
			return false
		}
		status = s
		return s.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond, "job %s did not finish", id)
	return status
}

func newTestExecutor(t *testing.T, searcher Searcher, membership Membership, cfg *Config) *Executor {
	t.Helper()
	e := NewExecutor(searcher, membership, NewMonitor(nil), cfg, nil)
	t.Cleanup(func() { e.Close() })
	return e
}
