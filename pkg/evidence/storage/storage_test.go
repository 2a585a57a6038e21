package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/tribune/pkg/evidence"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// forEachBackend runs fn against a fresh memory store and a fresh store on
// each SQLite driver.
func forEachBackend(t *testing.T, fn func(t *testing.T, s evidence.Storage)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStorage())
	})
	for _, driver := range []string{DriverModernc, DriverMattn} {
		t.Run("sqlite-"+driver, func(t *testing.T) {
			s, err := NewSQLiteStorage(SQLiteConfig{
				Path:   filepath.Join(t.TempDir(), "decisions.db"),
				Driver: driver,
			})
			if err != nil {
				t.Fatalf("NewSQLiteStorage() error = %v", err)
			}
			t.Cleanup(func() { s.Close() })
			fn(t, s)
		})
	}
}

func decision(id string, offset time.Duration, requester, outcome string, policies ...evidence.PolicyDecision) *evidence.DecisionRecord {
	return &evidence.DecisionRecord{
		ID:            id,
		RequestID:     "req-" + id,
		EvaluatedAt:   base.Add(offset),
		RecordedAt:    base.Add(offset + time.Millisecond),
		Source:        "api",
		BundleVersion: "v1",
		Requester:     requester,
		SubjectKind:   evidence.SubjectPolicySet,
		Subject:       "crypto",
		Outcome:       outcome,
		Compliant:     outcome != "non_compliant",
		Policies:      policies,
		ContextHash:   "hash-" + id,
	}
}

func seed(t *testing.T, s evidence.Storage) {
	t.Helper()
	records := []*evidence.DecisionRecord{
		decision("d1", 0, "alice", "compliant",
			evidence.PolicyDecision{PolicyID: "p-alg", Policy: "Algorithms", Outcome: "compliant"}),
		decision("d2", time.Hour, "legacy-bot", "compliant_with_exemption",
			evidence.PolicyDecision{PolicyID: "p-alg", Policy: "Algorithms", Outcome: "compliant_with_exemption", ExemptionID: "ex-1"}),
		decision("d3", 2*time.Hour, "alice", "non_compliant",
			evidence.PolicyDecision{
				PolicyID: "p_key", Policy: "Key Size", Outcome: "non_compliant",
				Violations: []evidence.ViolationRecord{{RuleID: "r1", Severity: "high", Details: "key_size 1024 < 2048"}},
			}),
	}
	for _, r := range records {
		if err := s.Store(context.Background(), r); err != nil {
			t.Fatalf("Store(%s) error = %v", r.ID, err)
		}
	}
}

func ids(records []*evidence.DecisionRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStorage_Query(t *testing.T) {
	yes := true
	no := false
	start := base.Add(30 * time.Minute)
	end := base.Add(90 * time.Minute)

	tests := []struct {
		name  string
		query evidence.Query
		want  []string
	}{
		{name: "all newest first", query: evidence.Query{}, want: []string{"d3", "d2", "d1"}},
		{name: "ascending", query: evidence.Query{SortOrder: "asc"}, want: []string{"d1", "d2", "d3"}},
		{name: "by recorded_at", query: evidence.Query{SortBy: "recorded_at", SortOrder: "asc"}, want: []string{"d1", "d2", "d3"}},
		{name: "requester", query: evidence.Query{Requester: "alice"}, want: []string{"d3", "d1"}},
		{name: "outcome", query: evidence.Query{Outcome: "non_compliant"}, want: []string{"d3"}},
		{name: "compliant", query: evidence.Query{Compliant: &yes}, want: []string{"d2", "d1"}},
		{name: "not compliant", query: evidence.Query{Compliant: &no}, want: []string{"d3"}},
		{name: "exempted", query: evidence.Query{Exempted: true}, want: []string{"d2"}},
		{name: "policy id", query: evidence.Query{PolicyID: "p-alg"}, want: []string{"d2", "d1"}},
		{name: "policy id underscore is literal", query: evidence.Query{PolicyID: "p_key"}, want: []string{"d3"}},
		{name: "policy id prefix does not match", query: evidence.Query{PolicyID: "p"}, want: []string{}},
		{name: "time range", query: evidence.Query{StartTime: &start, EndTime: &end}, want: []string{"d2"}},
		{name: "limit", query: evidence.Query{Limit: 2}, want: []string{"d3", "d2"}},
		{name: "offset", query: evidence.Query{Limit: 2, Offset: 2}, want: []string{"d1"}},
		{name: "offset past end", query: evidence.Query{Offset: 10}, want: []string{}},
		{name: "subject kind", query: evidence.Query{SubjectKind: evidence.SubjectPolicy}, want: []string{}},
		{name: "bundle version", query: evidence.Query{BundleVersion: "v1", Subject: "crypto"}, want: []string{"d3", "d2", "d1"}},
	}

	forEachBackend(t, func(t *testing.T, s evidence.Storage) {
		seed(t, s)
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				q := tt.query
				got, err := s.Query(context.Background(), &q)
				if err != nil {
					t.Fatalf("Query() error = %v", err)
				}
				if !equal(ids(got), tt.want) {
					t.Errorf("Query() = %v, want %v", ids(got), tt.want)
				}

				count, err := s.Count(context.Background(), &evidence.Query{
					StartTime: q.StartTime, EndTime: q.EndTime, Requester: q.Requester,
					SubjectKind: q.SubjectKind, Subject: q.Subject, Outcome: q.Outcome,
					BundleVersion: q.BundleVersion, PolicyID: q.PolicyID,
					Compliant: q.Compliant, Exempted: q.Exempted,
				})
				if err != nil {
					t.Fatalf("Count() error = %v", err)
				}
				if q.Limit == 0 && q.Offset == 0 && count != int64(len(tt.want)) {
					t.Errorf("Count() = %d, want %d", count, len(tt.want))
				}
			})
		}
	})
}

func TestStorage_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s evidence.Storage) {
		ctx := context.Background()
		in := decision("rt", 0, "alice", "partially_compliant",
			evidence.PolicyDecision{PolicyID: "p1", Policy: "Algorithms", Outcome: "compliant", ExemptionID: "ex-9"},
			evidence.PolicyDecision{
				PolicyID: "p2", Policy: "Key Size", Outcome: "non_compliant",
				Violations: []evidence.ViolationRecord{{RuleID: "r1", Severity: "critical", Details: "too small"}},
			},
		)
		in.Skipped = []string{"p3"}
		in.Context = json.RawMessage(`{"algorithm":{"string":"RSA"}}`)

		if err := s.Store(ctx, in); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		got, err := s.Query(ctx, &evidence.Query{})
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("Query() returned %d records, want 1", len(got))
		}
		out := got[0]

		if !out.EvaluatedAt.Equal(in.EvaluatedAt) || !out.RecordedAt.Equal(in.RecordedAt) {
			t.Errorf("timestamps = %v/%v, want %v/%v", out.EvaluatedAt, out.RecordedAt, in.EvaluatedAt, in.RecordedAt)
		}
		if out.RequestID != in.RequestID || out.Requester != in.Requester || out.Outcome != in.Outcome {
			t.Errorf("record = %+v, want %+v", out, in)
		}
		if len(out.Policies) != 2 || out.Policies[0].ExemptionID != "ex-9" || len(out.Policies[1].Violations) != 1 {
			t.Errorf("Policies = %+v", out.Policies)
		}
		if !equal(out.Skipped, []string{"p3"}) {
			t.Errorf("Skipped = %v, want [p3]", out.Skipped)
		}
		if string(out.Context) != string(in.Context) {
			t.Errorf("Context = %s, want %s", out.Context, in.Context)
		}
		if out.ViolationCount() != 1 || !equal(out.ExemptionIDs(), []string{"ex-9"}) {
			t.Errorf("ViolationCount() = %d, ExemptionIDs() = %v", out.ViolationCount(), out.ExemptionIDs())
		}
	})
}

func TestStorage_Delete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s evidence.Storage) {
		seed(t, s)
		ctx := context.Background()

		cutoff := base.Add(time.Hour)
		deleted, err := s.Delete(ctx, &evidence.Query{EndTime: &cutoff})
		if err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if deleted != 2 {
			t.Errorf("Delete() = %d, want 2", deleted)
		}

		got, err := s.Query(ctx, &evidence.Query{})
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if !equal(ids(got), []string{"d3"}) {
			t.Errorf("remaining = %v, want [d3]", ids(got))
		}
	})
}

func TestStorage_QueryStream(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s evidence.Storage) {
		seed(t, s)

		recordsCh, errCh, err := s.QueryStream(context.Background(), &evidence.Query{SortOrder: "asc"})
		if err != nil {
			t.Fatalf("QueryStream() error = %v", err)
		}
		var got []string
		for r := range recordsCh {
			got = append(got, r.ID)
		}
		if err := <-errCh; err != nil {
			t.Fatalf("stream error = %v", err)
		}
		if !equal(got, []string{"d1", "d2", "d3"}) {
			t.Errorf("streamed %v, want [d1 d2 d3]", got)
		}
	})
}

func TestStorage_QueryStreamCancelled(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s evidence.Storage) {
		for i := 0; i < 250; i++ {
			r := decision(fmt.Sprintf("c%03d", i), time.Duration(i)*time.Second, "alice", "compliant")
			if err := s.Store(context.Background(), r); err != nil {
				t.Fatalf("Store() error = %v", err)
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		recordsCh, errCh, err := s.QueryStream(ctx, &evidence.Query{})
		if err != nil {
			t.Fatalf("QueryStream() error = %v", err)
		}
		<-recordsCh
		cancel()
		for range recordsCh {
		}
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("stream error = %v, want nil or context.Canceled", err)
		}
	})
}

func TestNewSQLiteStorage_Errors(t *testing.T) {
	tests := []struct {
		name   string
		config SQLiteConfig
	}{
		{name: "empty path", config: SQLiteConfig{}},
		{name: "unknown driver", config: SQLiteConfig{Path: filepath.Join(t.TempDir(), "x.db"), Driver: "postgres"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSQLiteStorage(tt.config)
			var se *evidence.StorageError
			if !errors.As(err, &se) {
				t.Fatalf("NewSQLiteStorage() error = %v, want *evidence.StorageError", err)
			}
			if se.Backend != BackendSQLite || se.Operation != "open" {
				t.Errorf("StorageError = %+v", se)
			}
		})
	}
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.db")

	s, err := NewSQLiteStorage(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	seed(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	s, err = NewSQLiteStorage(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	count, err := s.Count(context.Background(), &evidence.Query{})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() after reopen = %d, want 3", count)
	}
}

func TestNew(t *testing.T) {
	mem, err := New(Config{Backend: BackendMemory})
	if err != nil {
		t.Fatalf("New(memory) error = %v", err)
	}
	if _, ok := mem.(*MemoryStorage); !ok {
		t.Errorf("New(memory) = %T, want *MemoryStorage", mem)
	}

	lite, err := New(Config{Backend: BackendSQLite, SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "d.db")}})
	if err != nil {
		t.Fatalf("New(sqlite) error = %v", err)
	}
	defer lite.Close()
	if _, ok := lite.(*SQLiteStorage); !ok {
		t.Errorf("New(sqlite) = %T, want *SQLiteStorage", lite)
	}

	if _, err := New(Config{Backend: "postgres"}); err == nil {
		t.Error("New(postgres) error = nil, want error")
	}
}
