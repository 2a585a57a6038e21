package eventstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

var t0 = time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC)

// backends returns a fresh store per backend under test.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite-modernc": func(t *testing.T) Store {
			s, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "events.db")})
			if err != nil {
				t.Fatalf("NewSQLiteStore() error = %v", err)
			}
			return s
		},
		"sqlite-mattn": func(t *testing.T) Store {
			s, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "events.db"), Driver: DriverMattn})
			if err != nil {
				// The mattn driver needs cgo.
				t.Skipf("mattn driver unavailable: %v", err)
			}
			return s
		},
	}
}

func created(id uuid.UUID) event.Event {
	return event.New(id, event.PolicyCreated{
		PolicyID:         id,
		Name:             "Key strength",
		Rules:            []domain.Rule{domain.MinKeySize(2048)},
		Target:           domain.GlobalTarget(),
		EnforcementLevel: domain.EnforcementHard,
		CreatedBy:        "alice",
		CreatedAt:        t0,
	}, "alice", t0)
}

func TestStore_AppendAndLoad(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()
			id := uuid.New()

			first := created(id)
			stored, err := s.Append(ctx, id, 0, first,
				event.New(id, event.PolicySubmitted{PolicyID: id, SubmittedBy: "alice"}, "alice", t0.Add(time.Minute), event.CausedBy(first)),
			)
			if err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if stored[0].Seq != 1 || stored[1].Seq != 2 {
				t.Errorf("assigned seqs = %d, %d", stored[0].Seq, stored[1].Seq)
			}

			_, err = s.Append(ctx, id, 2,
				event.New(id, event.PolicyApproved{PolicyID: id, ApprovedBy: "bob"}, "bob", t0.Add(2*time.Minute)),
			)
			if err != nil {
				t.Fatalf("second Append() error = %v", err)
			}

			events, err := s.Load(ctx, id)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(events) != 3 {
				t.Fatalf("Load() = %d events, want 3", len(events))
			}
			for i, e := range events {
				if e.Seq != uint64(i+1) {
					t.Errorf("events[%d].Seq = %d", i, e.Seq)
				}
			}

			if events[1].CorrelationID != first.ID || events[1].CausationID != first.ID {
				t.Errorf("correlation = %s / %s, want %s", events[1].CorrelationID, events[1].CausationID, first.ID)
			}
			if !events[2].Timestamp.Equal(t0.Add(2*time.Minute)) || events[2].Actor != "bob" {
				t.Errorf("events[2] = %+v", events[2])
			}

			payload, ok := events[0].Payload.(event.PolicyCreated)
			if !ok {
				t.Fatalf("Payload = %T, want PolicyCreated", events[0].Payload)
			}
			ge, ok := payload.Rules[0].Expression.(ast.GreaterThanOrEqual)
			if !ok || !ast.ValuesEqual(ge.Value, ast.Integer(2048)) {
				t.Errorf("rule expression = %#v", payload.Rules[0].Expression)
			}
		})
	}
}

func TestStore_SequenceConflict(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()
			id := uuid.New()

			if _, err := s.Append(ctx, id, 0, created(id)); err != nil {
				t.Fatal(err)
			}

			_, err := s.Append(ctx, id, 0, created(id))
			if !errors.Is(err, ErrSequenceConflict) {
				t.Fatalf("Append() error = %v, want ErrSequenceConflict", err)
			}
			var conflict *SequenceConflictError
			if !errors.As(err, &conflict) || conflict.Expected != 0 || conflict.Actual != 1 {
				t.Errorf("SequenceConflictError = %+v", conflict)
			}

			// The rejected append left the stream untouched.
			events, err := s.Load(ctx, id)
			if err != nil || len(events) != 1 {
				t.Errorf("Load() = %d, %v", len(events), err)
			}
		})
	}
}

func TestStore_AggregateMismatch(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			_, err := s.Append(context.Background(), uuid.New(), 0, created(uuid.New()))
			if !errors.Is(err, ErrAggregateMismatch) {
				t.Fatalf("Append() error = %v, want ErrAggregateMismatch", err)
			}
		})
	}
}

func TestStore_AggregateIDs(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()

			p1, p2, set := uuid.New(), uuid.New(), uuid.New()
			for _, id := range []uuid.UUID{p1, p2} {
				if _, err := s.Append(ctx, id, 0, created(id)); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := s.Append(ctx, set, 0, event.New(set, event.PolicySetCreated{SetID: set, Name: "baseline"}, "alice", t0)); err != nil {
				t.Fatal(err)
			}

			ids, err := s.AggregateIDs(ctx, event.AggregatePolicy)
			if err != nil {
				t.Fatal(err)
			}
			if len(ids) != 2 || ids[0] != p1 || ids[1] != p2 {
				t.Errorf("AggregateIDs(policy) = %v", ids)
			}
			ids, err = s.AggregateIDs(ctx, event.AggregatePolicySet)
			if err != nil || len(ids) != 1 || ids[0] != set {
				t.Errorf("AggregateIDs(policy_set) = %v, %v", ids, err)
			}
		})
	}
}

func TestStore_LoadUnknown(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			events, err := s.Load(context.Background(), uuid.New())
			if err != nil || len(events) != 0 {
				t.Errorf("Load(unknown) = %v, %v", events, err)
			}
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			if err := s.Close(); err != nil {
				t.Fatal(err)
			}
			ctx := context.Background()
			id := uuid.New()
			if _, err := s.Append(ctx, id, 0, created(id)); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("Append() error = %v, want ErrStoreClosed", err)
			}
			if _, err := s.Load(ctx, id); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("Load() error = %v, want ErrStoreClosed", err)
			}
			if _, err := s.AggregateIDs(ctx, event.AggregatePolicy); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("AggregateIDs() error = %v, want ErrStoreClosed", err)
			}
		})
	}
}

func TestStore_ConcurrentAppend(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()
			id := uuid.New()

			// Every writer races for sequence 1; exactly one wins.
			const writers = 8
			var wg sync.WaitGroup
			results := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Append(ctx, id, 0, created(id))
					results <- err
				}()
			}
			wg.Wait()
			close(results)

			wins := 0
			for err := range results {
				switch {
				case err == nil:
					wins++
				case !errors.Is(err, ErrSequenceConflict):
					t.Errorf("unexpected error: %v", err)
				}
			}
			if wins != 1 {
				t.Errorf("%d writers succeeded, want 1", wins)
			}
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()
	id := uuid.New()

	s, err := NewSQLiteStore(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append(ctx, id, 0, created(id)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = NewSQLiteStore(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	events, err := s.Load(ctx, id)
	if err != nil || len(events) != 1 {
		t.Fatalf("Load() after reopen = %d, %v", len(events), err)
	}
}

func TestNewSQLiteStore_InvalidConfig(t *testing.T) {
	if _, err := NewSQLiteStore(SQLiteConfig{}); err == nil {
		t.Error("empty path accepted")
	}
	if _, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "x.db"), Driver: "postgres"}); err == nil {
		t.Error("unknown driver accepted")
	}
}

func TestNew(t *testing.T) {
	s, err := New(Config{Backend: BackendMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("New(memory) = %T", s)
	}
	s.Close()

	s, err = New(Config{Backend: BackendSQLite, SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "e.db")}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("New(sqlite) = %T", s)
	}
	s.Close()

	if _, err := New(Config{Backend: "cassandra"}); err == nil {
		t.Error("unknown backend accepted")
	}
}
