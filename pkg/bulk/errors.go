package bulk

import (
	"errors"
	"fmt"

	"mercator-hq/holds/pkg/content"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("bulk status not found")

// ValidationError is returned synchronously by Submit; no job is created.
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError is returned for an unknown bulk status id.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("bulk status %q not found", e.ID)
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PerNodeError is a failure confined to a single item. It is counted in
// ErrorsCount and the job continues with the next item.
type PerNodeError struct {
	JobID  string
	Item   content.NodeRef
	Action Action
	Cause  error
}

// Error implements the error interface.
func (e *PerNodeError) Error() string {
	return fmt.Sprintf("bulk job %s: %s %s failed: %v", e.JobID, e.Action, e.Item, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *PerNodeError) Unwrap() error {
	return e.Cause
}

// FatalJobError ends a job with status ERROR.
type FatalJobError struct {
	JobID string
	Cause error
}

// Error implements the error interface.
func (e *FatalJobError) Error() string {
	return fmt.Sprintf("bulk job %s failed: %v", e.JobID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *FatalJobError) Unwrap() error {
	return e.Cause
}

// ErrExecutorClosed is returned by Submit once Close has been called.
var ErrExecutorClosed = errors.New("bulk executor is closed")
