package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// BulkStatusIDKey is the context key for bulk job ids.
	BulkStatusIDKey contextKey = "bulk_status_id"

	// HoldKey is the context key for hold references.
	HoldKey contextKey = "hold"

	// RequestIDKey is the context key for HTTP request ids.
	RequestIDKey contextKey = "request_id"
)

// contextFieldOrder fixes the order fields are emitted in.
var contextFieldOrder = []contextKey{RequestIDKey, BulkStatusIDKey, HoldKey}

// WithBulkStatusID adds a bulk job id to the context.
func WithBulkStatusID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, BulkStatusIDKey, id)
}

// GetBulkStatusID retrieves the bulk job id from the context.
func GetBulkStatusID(ctx context.Context) string {
	return getString(ctx, BulkStatusIDKey)
}

// WithHold adds a hold reference to the context.
func WithHold(ctx context.Context, hold string) context.Context {
	return context.WithValue(ctx, HoldKey, hold)
}

// GetHold retrieves the hold reference from the context.
func GetHold(ctx context.Context) string {
	return getString(ctx, HoldKey)
}

// WithRequestID adds a request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request id from the context.
func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

func getString(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// extractContextFields returns the known context fields as slog attributes.
func extractContextFields(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, key := range contextFieldOrder {
		if v := getString(ctx, key); v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}

// contextHandler adds context fields to every record.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := extractContextFields(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}
