package eventstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/event"
)

// MemoryStore implements Store in process memory.
// This implementation is intended for tests and one-shot runs and does not
// survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[uuid.UUID][]event.Record
	order   []uuid.UUID
	closed  bool
	opts    options
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		streams: make(map[uuid.UUID][]event.Record),
		opts:    buildOptions("eventstore.memory", opts),
	}
}

// Append adds events to the aggregate's stream.
func (s *MemoryStore) Append(ctx context.Context, aggregateID uuid.UUID, expectedSeq uint64, events ...event.Event) ([]event.Event, error) {
	stamped, records, err := sequence(aggregateID, expectedSeq, events)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	stream := s.streams[aggregateID]
	if actual := uint64(len(stream)); actual != expectedSeq {
		err := &SequenceConflictError{AggregateID: aggregateID, Expected: expectedSeq, Actual: actual}
		s.opts.recorder.RecordAppend(BackendMemory, len(events), err)
		return nil, err
	}
	if len(records) == 0 {
		return stamped, nil
	}

	if stream == nil {
		s.order = append(s.order, aggregateID)
	}
	s.streams[aggregateID] = append(stream, records...)
	s.opts.recorder.RecordAppend(BackendMemory, len(events), nil)
	return stamped, nil
}

// Load returns the aggregate's events in sequence order.
func (s *MemoryStore) Load(ctx context.Context, aggregateID uuid.UUID) ([]event.Event, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	records := s.streams[aggregateID]
	s.mu.RUnlock()

	events := make([]event.Event, 0, len(records))
	for _, rec := range records {
		e, err := event.Decode(rec)
		if err != nil {
			s.opts.recorder.RecordLoad(BackendMemory, 0, err)
			return nil, err
		}
		events = append(events, e)
	}
	s.opts.recorder.RecordLoad(BackendMemory, len(events), nil)
	return events, nil
}

// AggregateIDs lists the aggregates of the given type.
func (s *MemoryStore) AggregateIDs(ctx context.Context, aggregateType event.AggregateType) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	var ids []uuid.UUID
	for _, id := range s.order {
		if s.streams[id][0].AggregateType == aggregateType {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
