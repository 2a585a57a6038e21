package saga

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrInvalidTransition indicates an event that is not allowed in the
	// saga's current state.
	ErrInvalidTransition = errors.New("invalid saga transition")

	// ErrAlreadyCompleted indicates an operation on a completed saga.
	ErrAlreadyCompleted = errors.New("saga already completed")

	// ErrSagaFailed indicates an operation on a failed saga.
	ErrSagaFailed = errors.New("saga has failed")

	// ErrMissingData indicates workflow data required by an operation has
	// not been provided.
	ErrMissingData = errors.New("missing required data")

	// ErrTimeout indicates the saga passed its deadline before completing.
	ErrTimeout = errors.New("timeout waiting for event")

	// ErrConcurrentModification indicates the saga changed since the caller
	// last read its version.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// InvalidTransitionError records a rejected state change.
type InvalidTransitionError struct {
	Saga Kind
	From State
	To   State
}

// Error returns the error message.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s saga: invalid state transition from %s to %s", e.Saga, e.From, e.To)
}

// Unwrap returns ErrInvalidTransition.
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// MissingDataError names the missing workflow data.
type MissingDataError struct {
	Field string
}

// Error returns the error message.
func (e *MissingDataError) Error() string {
	return fmt.Sprintf("missing required data: %s", e.Field)
}

// Unwrap returns ErrMissingData.
func (e *MissingDataError) Unwrap() error {
	return ErrMissingData
}

// ConcurrentModificationError records the version mismatch.
type ConcurrentModificationError struct {
	Expected uint32
	Actual   uint32
}

// Error returns the error message.
func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("concurrent modification detected: expected version %d, saga is at %d", e.Expected, e.Actual)
}

// Unwrap returns ErrConcurrentModification.
func (e *ConcurrentModificationError) Unwrap() error {
	return ErrConcurrentModification
}
