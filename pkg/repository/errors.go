package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/event"
)

// Common sentinel errors
var (
	// ErrNotFound indicates an aggregate with no stored history.
	ErrNotFound = errors.New("aggregate not found")

	// ErrNoEvents indicates Save was called with nothing to append.
	ErrNoEvents = errors.New("no events to save")
)

// NotFoundError names the missing aggregate.
type NotFoundError struct {
	AggregateType event.AggregateType
	AggregateID   uuid.UUID
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.AggregateType, e.AggregateID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
