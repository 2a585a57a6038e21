package aggregate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/event"
)

var (
	// ErrInvalidSequence indicates a history that does not start with the
	// aggregate's creation event, or that creates the aggregate twice.
	ErrInvalidSequence = errors.New("invalid event sequence")

	// ErrUnsupportedEvent indicates an event type the reducer does not know.
	ErrUnsupportedEvent = errors.New("unsupported event")
)

// SequenceError describes where a history broke the creation rule. An
// empty Expected means the creation event appeared twice.
type SequenceError struct {
	AggregateID uuid.UUID
	Expected    event.Type
	Got         event.Type
	Seq         uint64
}

func (e *SequenceError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("aggregate %s: event %d repeats creation event %s", e.AggregateID, e.Seq, e.Got)
	}
	return fmt.Sprintf("aggregate %s: event %d is %s, expected %s", e.AggregateID, e.Seq, e.Got, e.Expected)
}

func (e *SequenceError) Unwrap() error {
	return ErrInvalidSequence
}

func sequenceError(e event.Event, expected event.Type) error {
	return &SequenceError{AggregateID: e.AggregateID, Expected: expected, Got: e.Type, Seq: e.Seq}
}

func unsupported(e event.Event) error {
	return fmt.Errorf("%w: %s payload %T", ErrUnsupportedEvent, e.Type, e.Payload)
}
