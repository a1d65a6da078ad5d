package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"mercator-hq/holds/pkg/bulk"
	"mercator-hq/holds/pkg/content"
)

// HoldService is the hold-membership surface used by the API.
type HoldService interface {
	CreateHold(ctx context.Context, name, reason string) (*content.Hold, error)
	Hold(ctx context.Context, ref content.NodeRef) (*content.Hold, error)
	HeldItems(ctx context.Context, hold content.NodeRef) ([]content.NodeRef, error)
	IsFrozen(ctx context.Context, item content.NodeRef) (bool, error)
	HasFrozenChildren(ctx context.Context, container content.NodeRef) (bool, error)
	HeldChildrenCount(ctx context.Context, container content.NodeRef) (int64, error)
}

// Submitter schedules bulk jobs.
type Submitter interface {
	Submit(ctx context.Context, hold content.NodeRef, op bulk.Operation) (bulk.BulkStatus, error)
}

// StatusMonitor reads and cancels bulk jobs.
type StatusMonitor interface {
	Status(ctx context.Context, id string) (bulk.BulkStatus, error)
	Cancel(ctx context.Context, req bulk.CancellationRequest) error
	List() []bulk.BulkStatus
}

// API serves the hold and bulk endpoints.
type API struct {
	holds    HoldService
	executor Submitter
	monitor  StatusMonitor
}

// NewAPI creates the API handlers.
func NewAPI(holds HoldService, executor Submitter, monitor StatusMonitor) *API {
	return &API{holds: holds, executor: executor, monitor: monitor}
}

// Options adds optional endpoints to the router.
type Options struct {
	// Health serves GET /health when set.
	Health http.Handler

	// Metrics is served at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
}

// Handler returns the API router wrapped in the middleware chain.
func (a *API) Handler(opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/holds", a.createHold)
	mux.HandleFunc("GET /api/v1/holds/{hold}", a.getHold)
	mux.HandleFunc("POST /api/v1/holds/{hold}/bulk", a.submitBulk)
	mux.HandleFunc("GET /api/v1/bulk", a.listBulk)
	mux.HandleFunc("GET /api/v1/bulk/{id}", a.getBulk)
	mux.HandleFunc("POST /api/v1/bulk/{id}/cancel", a.cancelBulk)
	mux.HandleFunc("GET /api/v1/nodes/{ref}/frozen", a.getFrozen)

	if opts.Health != nil {
		mux.Handle("GET /health", opts.Health)
	}
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, opts.Metrics)
	}

	var handler http.Handler = mux
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(handler)
	return handler
}

// CreateHoldRequest is the body of POST /api/v1/holds.
type CreateHoldRequest struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// HoldResponse describes a hold and its directly held items.
type HoldResponse struct {
	*content.Hold
	Items []content.NodeRef `json:"items"`
}

// SubmitBulkRequest is the body of POST /api/v1/holds/{hold}/bulk.
type SubmitBulkRequest struct {
	Query  string `json:"query"`
	Action string `json:"action"`
}

// CancelBulkRequest is the body of POST /api/v1/bulk/{id}/cancel.
type CancelBulkRequest struct {
	Reason string `json:"reason"`
}

// FrozenResponse reports the freeze state of a node.
type FrozenResponse struct {
	Ref               content.NodeRef `json:"ref"`
	Frozen            bool            `json:"frozen"`
	HasFrozenChildren bool            `json:"has_frozen_children"`
	HeldChildrenCount int64           `json:"held_children_count"`
}

func (a *API) createHold(w http.ResponseWriter, r *http.Request) {
	var req CreateHoldRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeDomainError(w, bulk.NewValidationError("name", "hold name is required"))
		return
	}

	hold, err := a.holds.CreateHold(r.Context(), req.Name, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, HoldResponse{Hold: hold, Items: []content.NodeRef{}})
}

func (a *API) getHold(w http.ResponseWriter, r *http.Request) {
	ref := content.NodeRef(r.PathValue("hold"))

	hold, err := a.holds.Hold(r.Context(), ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	items, err := a.holds.HeldItems(r.Context(), ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HoldResponse{Hold: hold, Items: items})
}

func (a *API) submitBulk(w http.ResponseWriter, r *http.Request) {
	var req SubmitBulkRequest
	if !decode(w, r, &req) {
		return
	}

	action, err := bulk.ParseAction(req.Action)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status, err := a.executor.Submit(r.Context(), content.NodeRef(r.PathValue("hold")), bulk.Operation{
		Query:  req.Query,
		Action: action,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/bulk/"+status.ID)
	writeJSON(w, http.StatusAccepted, status)
}

func (a *API) listBulk(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.monitor.List())
}

func (a *API) getBulk(w http.ResponseWriter, r *http.Request) {
	status, err := a.monitor.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) cancelBulk(w http.ResponseWriter, r *http.Request) {
	var req CancelBulkRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	if err := a.monitor.Cancel(r.Context(), bulk.CancellationRequest{BulkStatusID: id, Reason: req.Reason}); err != nil {
		writeDomainError(w, err)
		return
	}

	status, err := a.monitor.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

func (a *API) getFrozen(w http.ResponseWriter, r *http.Request) {
	ref := content.NodeRef(r.PathValue("ref"))
	ctx := r.Context()

	frozen, err := a.holds.IsFrozen(ctx, ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	hasChildren, err := a.holds.HasFrozenChildren(ctx, ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	count, err := a.holds.HeldChildrenCount(ctx, ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FrozenResponse{
		Ref:               ref,
		Frozen:            frozen,
		HasFrozenChildren: hasChildren,
		HeldChildrenCount: count,
	})
}

// decode reads a JSON body into v and writes a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
			Code:    "invalid_request",
			Message: fmt.Sprintf("invalid request body: %v", err),
		}})
		return false
	}
	return true
}
