package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrRecorderClosed is returned by Record after Close.
	ErrRecorderClosed = errors.New("audit recorder closed")

	// ErrBufferFull is returned by Record when the queue is full and the
	// record was dropped.
	ErrBufferFull = errors.New("audit buffer full")

	// ErrInvalidRecord is returned by storage for records missing an ID or outcome.
	ErrInvalidRecord = errors.New("invalid audit record")
)

// StorageError represents an error from a record storage backend.
type StorageError struct {
	Backend   string // "memory", "sqlite"
	Operation string // "store", "query", "count", "delete"
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("audit storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
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

func validateRecord(r *Record) error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	if !r.Outcome.Valid() {
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidRecord, r.Outcome)
	}
	return nil
}
