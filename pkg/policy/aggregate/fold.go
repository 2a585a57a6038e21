package aggregate

import (
	"time"

	"mercator-hq/tribune/pkg/policy/event"
)

// Reducer folds one event into an aggregate state.
type Reducer[T any] func(state *T, e event.Event) (*T, error)

func fold[T any](events []event.Event, creation event.Type, apply Reducer[T]) (*T, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if events[0].Type != creation {
		return nil, sequenceError(events[0], creation)
	}

	var state *T
	for _, e := range events {
		next, err := apply(state, e)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
