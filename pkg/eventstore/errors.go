package eventstore

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common sentinel errors
var (
	// ErrStoreClosed indicates an operation on a closed store.
	ErrStoreClosed = errors.New("event store closed")

	// ErrSequenceConflict indicates another writer appended to the aggregate
	// since the caller last loaded it.
	ErrSequenceConflict = errors.New("sequence conflict")

	// ErrAggregateMismatch indicates an appended event belongs to another
	// aggregate.
	ErrAggregateMismatch = errors.New("event does not belong to aggregate")
)

// SequenceConflictError records the expected and actual stream position.
type SequenceConflictError struct {
	AggregateID uuid.UUID
	Expected    uint64
	Actual      uint64
}

// Error returns the error message.
func (e *SequenceConflictError) Error() string {
	return fmt.Sprintf("aggregate %s: expected sequence %d, store is at %d", e.AggregateID, e.Expected, e.Actual)
}

// Unwrap returns ErrSequenceConflict.
func (e *SequenceConflictError) Unwrap() error {
	return ErrSequenceConflict
}

// StorageError wraps a backend failure with the operation that failed.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error returns the error message.
func (e *StorageError) Error() string {
	return fmt.Sprintf("event store error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

func storageError(backend, operation string, cause error) error {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}
