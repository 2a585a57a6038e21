package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStateTransition indicates a lifecycle change not allowed from
	// the current status.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrUnknownEnum indicates a textual enum value that does not parse.
	ErrUnknownEnum = errors.New("unknown enum value")
)

// InvalidTransitionError records the rejected source and target status.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

// Error returns the error message.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: invalid state transition from %s to %s", e.Entity, e.From, e.To)
}

// Unwrap returns ErrInvalidStateTransition.
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

func unknownEnum(kind, value string) error {
	return fmt.Errorf("%w: %s %q", ErrUnknownEnum, kind, value)
}
