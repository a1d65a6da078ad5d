package content

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeNotFound is returned when a node reference does not resolve.
	ErrNodeNotFound = errors.New("node not found")

	// ErrHoldNotFound is returned when a hold reference does not resolve.
	ErrHoldNotFound = errors.New("hold not found")

	// ErrDuplicate is returned when a node path or hold name already exists.
	ErrDuplicate = errors.New("already exists")
)

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory")
	Operation string // Operation that failed ("create_node", "adjust_held_children", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}
