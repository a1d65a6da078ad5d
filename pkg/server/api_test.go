package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/holds/pkg/bulk"
	"mercator-hq/holds/pkg/content"
	"mercator-hq/holds/pkg/content/search"
	"mercator-hq/holds/pkg/content/storage"
	"mercator-hq/holds/pkg/frozen"
	"mercator-hq/holds/pkg/holds"
)

type fixture struct {
	handler  http.Handler
	store    *storage.MemoryStore
	monitor  *bulk.Monitor
	executor *bulk.Executor
	folder   *content.Node
}

func newFixture(t *testing.T, records int) *fixture {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	folder := &content.Node{Name: "cases", Kind: content.KindContainer}
	require.NoError(t, store.CreateNode(ctx, folder))
	for i := range records {
		n := &content.Node{Name: "doc-" + string(rune('a'+i)), Kind: content.KindRecord, Parent: folder.Ref}
		require.NoError(t, store.CreateNode(ctx, n))
	}

	svc := holds.NewService(store, frozen.NewCache(nil))
	monitor := bulk.NewMonitor(nil)
	executor := bulk.NewExecutor(search.NewEngine(store), svc, monitor, &bulk.Config{PageSize: 2}, nil)
	t.Cleanup(func() { _ = executor.Close() })

	health := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics\n")) })

	return &fixture{
		handler:  NewAPI(svc, executor, monitor).Handler(Options{Health: health, Metrics: metrics, MetricsPath: "/stats"}),
		store:    store,
		monitor:  monitor,
		executor: executor,
		folder:   folder,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createHold(t *testing.T, name string) content.NodeRef {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/holds", CreateHoldRequest{Name: name, Reason: "litigation"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp HoldResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Ref
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestAPI_CreateHold(t *testing.T) {
	f := newFixture(t, 0)

	ref := f.createHold(t, "Case 42")
	assert.NotEmpty(t, ref)

	rec := f.do(t, http.MethodPost, "/api/v1/holds", CreateHoldRequest{Name: "Case 42"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/holds", CreateHoldRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decodeError(t, rec).Field)

	rec = f.do(t, http.MethodPost, "/api/v1/holds", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
}

func TestAPI_GetHold(t *testing.T) {
	f := newFixture(t, 0)
	ref := f.createHold(t, "H")

	rec := f.do(t, http.MethodGet, "/api/v1/holds/"+string(ref), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp HoldResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "H", resp.Name)
	assert.Empty(t, resp.Items)

	rec = f.do(t, http.MethodGet, "/api/v1/holds/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_BulkAddLifecycle(t *testing.T) {
	f := newFixture(t, 5)
	ref := f.createHold(t, "H")

	rec := f.do(t, http.MethodPost, "/api/v1/holds/"+string(ref)+"/bulk", SubmitBulkRequest{
		Query:  "path:/cases/* type:record",
		Action: "add",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var submitted bulk.BulkStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&submitted))
	assert.Equal(t, "/api/v1/bulk/"+submitted.ID, rec.Header().Get("Location"))
	assert.Equal(t, bulk.ActionAdd, submitted.Action)

	var status bulk.BulkStatus
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/api/v1/bulk/"+submitted.ID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
			return false
		}
		return status.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, bulk.StatusDone, status.Status)
	assert.Equal(t, int64(5), status.ProcessedItems)

	rec = f.do(t, http.MethodGet, "/api/v1/holds/"+string(ref), nil)
	var hold HoldResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&hold))
	assert.Len(t, hold.Items, 5)

	rec = f.do(t, http.MethodGet, "/api/v1/nodes/"+string(f.folder.Ref)+"/frozen", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var frozenResp FrozenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&frozenResp))
	assert.False(t, frozenResp.Frozen)
	assert.True(t, frozenResp.HasFrozenChildren)
	assert.Equal(t, int64(5), frozenResp.HeldChildrenCount)

	rec = f.do(t, http.MethodGet, "/api/v1/bulk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []bulk.BulkStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 1)
}

func TestAPI_SubmitBulkValidation(t *testing.T) {
	f := newFixture(t, 1)
	ref := f.createHold(t, "H")

	tests := []struct {
		name  string
		hold  string
		req   SubmitBulkRequest
		code  int
		field string
	}{
		{"bad action", string(ref), SubmitBulkRequest{Query: "type:record", Action: "move"}, http.StatusBadRequest, "action"},
		{"unknown hold", "nope", SubmitBulkRequest{Query: "type:record", Action: "ADD"}, http.StatusBadRequest, "hold"},
		{"malformed query", string(ref), SubmitBulkRequest{Query: "colour:red", Action: "ADD"}, http.StatusBadRequest, "query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/holds/"+tt.hold+"/bulk", tt.req)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			assert.Equal(t, "validation_error", body.Code)
			assert.Equal(t, tt.field, body.Field)
		})
	}
	assert.Empty(t, f.monitor.List(), "rejected submissions create no job")
}

func TestAPI_SubmitBulkAfterShutdown(t *testing.T) {
	f := newFixture(t, 1)
	ref := f.createHold(t, "H")
	require.NoError(t, f.executor.Close())

	rec := f.do(t, http.MethodPost, "/api/v1/holds/"+string(ref)+"/bulk", SubmitBulkRequest{Query: "type:record", Action: "ADD"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Equal(t, "unavailable", decodeError(t, rec).Code)
	assert.Empty(t, f.monitor.List())
}

func TestAPI_BulkStatusNotFound(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.do(t, http.MethodGet, "/api/v1/bulk/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/bulk/unknown/cancel", CancelBulkRequest{Reason: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CancelFinishedJobIsNoop(t *testing.T) {
	f := newFixture(t, 2)
	ref := f.createHold(t, "H")

	rec := f.do(t, http.MethodPost, "/api/v1/holds/"+string(ref)+"/bulk", SubmitBulkRequest{Query: "type:record", Action: "ADD"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var submitted bulk.BulkStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&submitted))

	require.Eventually(t, func() bool {
		s, err := f.monitor.Status(context.Background(), submitted.ID)
		return err == nil && s.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	rec = f.do(t, http.MethodPost, "/api/v1/bulk/"+submitted.ID+"/cancel", CancelBulkRequest{Reason: "too late"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var status bulk.BulkStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, bulk.StatusDone, status.Status)
	assert.Empty(t, status.CancellationReason)

	// An empty body is accepted.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bulk/"+submitted.ID+"/cancel", nil)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAPI_FrozenUnknownNode(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodGet, "/api/v1/nodes/missing/frozen", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_OptionalEndpoints(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# metrics"))

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMiddleware_RequestID(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestMiddleware_Recovery(t *testing.T) {
	handler := recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "internal_error", resp.Error.Code)
}
