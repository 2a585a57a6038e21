package eventstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/event"
)

// Store is an append-only event log ordered per aggregate.
type Store interface {
	// Append adds events to the aggregate's stream. expectedSeq is the
	// sequence of the last event the caller has seen (0 for a new stream).
	// Events are assigned consecutive sequences after expectedSeq and
	// returned with them set.
	Append(ctx context.Context, aggregateID uuid.UUID, expectedSeq uint64, events ...event.Event) ([]event.Event, error)

	// Load returns the aggregate's events in sequence order. An unknown
	// aggregate has an empty history.
	Load(ctx context.Context, aggregateID uuid.UUID) ([]event.Event, error)

	// AggregateIDs lists the aggregates of the given type in order of their
	// first event.
	AggregateIDs(ctx context.Context, aggregateType event.AggregateType) ([]uuid.UUID, error)

	// Close releases resources. Further calls return ErrStoreClosed.
	Close() error
}

// Recorder receives store measurements. The metrics collector implements
// it.
type Recorder interface {
	RecordAppend(backend string, events int, err error)
	RecordLoad(backend string, events int, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordAppend(string, int, error) {}
func (nopRecorder) RecordLoad(string, int, error)   {}

// sequence assigns stream positions and encodes events for storage.
func sequence(aggregateID uuid.UUID, expectedSeq uint64, events []event.Event) ([]event.Event, []event.Record, error) {
	stamped := make([]event.Event, len(events))
	records := make([]event.Record, len(events))
	for i, e := range events {
		if e.AggregateID != aggregateID {
			return nil, nil, fmt.Errorf("%w: event %s is for %s, not %s", ErrAggregateMismatch, e.ID, e.AggregateID, aggregateID)
		}
		e.Seq = expectedSeq + uint64(i) + 1
		rec, err := event.Encode(e)
		if err != nil {
			return nil, nil, err
		}
		stamped[i] = e
		records[i] = rec
	}
	return stamped, records, nil
}

// New opens the store selected by cfg.
func New(cfg Config, opts ...Option) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(opts...), nil
	case BackendSQLite:
		return NewSQLiteStore(cfg.SQLite, opts...)
	default:
		return nil, fmt.Errorf("unknown event store backend %q", cfg.Backend)
	}
}
