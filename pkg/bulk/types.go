package bulk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mercator-hq/holds/pkg/content"
	"mercator-hq/holds/pkg/content/search"
)

// Action is the membership change a bulk operation applies to every item.
type Action string

const (
	// ActionAdd adds every matching item to the hold.
	ActionAdd Action = "ADD"
	// ActionRemove removes every matching item from the hold.
	ActionRemove Action = "REMOVE"
)

// IsValid reports whether a is a supported action.
func (a Action) IsValid() bool {
	switch a {
	case ActionAdd, ActionRemove:
		return true
	}
	return false
}

// ParseAction parses an action name case-insensitively.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", NewValidationError("action", fmt.Sprintf("unsupported action %q", s))
	}
	return a, nil
}

// Status is the lifecycle state of a bulk job.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusDone      Status = "DONE"
	StatusCancelled Status = "CANCELLED"
	StatusError     Status = "ERROR"
)

// IsTerminal reports whether no further transition out of s is permitted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusCancelled, StatusError:
		return true
	}
	return false
}

// String returns the status name.
func (s Status) String() string { return string(s) }

// Operation is an immutable bulk request: apply Action to every item that
// matches Query.
type Operation struct {
	Query  string `json:"query"`
	Action Action `json:"action"`
}

// BulkStatus is a point-in-time snapshot of a bulk job. Snapshots are values;
// mutating one never affects the job.
type BulkStatus struct {
	ID     string          `json:"bulk_status_id"`
	Hold   content.NodeRef `json:"hold"`
	Query  string          `json:"query"`
	Action Action          `json:"action"`
	Status Status          `json:"status"`

	// Progress
	TotalItems     *int64 `json:"total_items,omitempty"` // Advisory, set from the first page
	ProcessedItems int64  `json:"processed_items"`
	ErrorsCount    int64  `json:"errors_count"`

	// Timestamps
	SubmittedTime time.Time  `json:"submitted_time"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`

	CancellationReason string `json:"cancellation_reason,omitempty"`
	FailureReason      string `json:"failure_reason,omitempty"`
}

// Clone returns a deep copy of s.
func (s BulkStatus) Clone() BulkStatus {
	c := s
	if s.TotalItems != nil {
		v := *s.TotalItems
		c.TotalItems = &v
	}
	if s.StartTime != nil {
		v := *s.StartTime
		c.StartTime = &v
	}
	if s.EndTime != nil {
		v := *s.EndTime
		c.EndTime = &v
	}
	return c
}

// CancellationRequest asks a running job to stop at its next check point.
type CancellationRequest struct {
	BulkStatusID string `json:"bulk_status_id"`
	Reason       string `json:"reason"`
}

// ItemClass is the bulk-target classification of a search result.
type ItemClass int

const (
	ItemUnsupported ItemClass = iota
	ItemRecord
	ItemContainer
)

// Classify maps a node kind onto its bulk-target class.
func Classify(kind content.Kind) ItemClass {
	switch kind {
	case content.KindRecord:
		return ItemRecord
	case content.KindContainer:
		return ItemContainer
	default:
		return ItemUnsupported
	}
}

// String returns the class name.
func (c ItemClass) String() string {
	switch c {
	case ItemRecord:
		return "record"
	case ItemContainer:
		return "container"
	default:
		return "unsupported"
	}
}

// Searcher is the search collaborator. NumberFound on the returned page is
// advisory only.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Page, error)
}

// QueryValidator is implemented by searchers that can reject a malformed
// query before a job is scheduled.
type QueryValidator interface {
	ValidateQuery(query string) error
}

// Membership is the hold-membership collaborator.
type Membership interface {
	Hold(ctx context.Context, ref content.NodeRef) (*content.Hold, error)
	Classify(ctx context.Context, item content.NodeRef) (content.Kind, error)
	AddToHolds(ctx context.Context, holds, items []content.NodeRef) error
	RemoveFromHolds(ctx context.Context, holds, items []content.NodeRef) error
}

// Archive persists terminal statuses so they outlive eviction from the
// in-memory registry.
type Archive interface {
	Save(ctx context.Context, status BulkStatus) error
	Load(ctx context.Context, id string) (BulkStatus, bool, error)
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
	DeleteExcess(ctx context.Context, keep int64) (int64, error)
	Close() error
}

// Metrics receives job and item events. A nil Metrics disables reporting.
type Metrics interface {
	RecordJobSubmitted(action string)
	RecordJobStarted()
	RecordJobFinished(status string, duration time.Duration)
	RecordJobNeverStarted(status string)
	RecordItemProcessed(action string, failed bool)
}
