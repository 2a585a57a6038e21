package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/tribune/pkg/evidence"
	"mercator-hq/tribune/pkg/evidence/storage"
	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
)

var evaluatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testDecision() Decision {
	ctx := domain.NewContext(map[string]ast.Value{
		"algorithm":  ast.String("RSA"),
		"key_size":   ast.Integer(1024),
		"subject_dn": ast.String("CN=payments.internal"),
	}, "alice", evaluatedAt)

	return Decision{
		RequestID:     "req-1",
		Source:        "api",
		BundleVersion: "v7",
		SubjectKind:   evidence.SubjectPolicy,
		Subject:       "Key Size",
		Context:       ctx,
		Outcome:       domain.OutcomeNonCompliant,
		Compliant:     false,
		Policies: []evidence.PolicyDecision{{
			PolicyID: "p1", Policy: "Key Size", Outcome: "non_compliant",
			Violations: []evidence.ViolationRecord{{RuleID: "r1", Severity: "high", Details: "key_size < 2048"}},
		}},
	}
}

type countingMetrics struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (m *countingMetrics) RecordDecisionWrite(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed++
	} else {
		m.ok++
	}
}

func (m *countingMetrics) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ok, m.failed
}

// blockingStorage holds every Store until release is closed.
type blockingStorage struct {
	*storage.MemoryStorage
	release chan struct{}
}

func (s *blockingStorage) Store(ctx context.Context, r *evidence.DecisionRecord) error {
	<-s.release
	return s.MemoryStorage.Store(ctx, r)
}

type failingStorage struct {
	*storage.MemoryStorage
}

func (failingStorage) Store(context.Context, *evidence.DecisionRecord) error {
	return evidence.NewStorageError("sqlite", "store", errors.New("database is locked"))
}

func TestRecorder_RecordAndClose(t *testing.T) {
	store := storage.NewMemoryStorage()
	metrics := &countingMetrics{}
	recordedAt := evaluatedAt.Add(time.Second)
	rec := NewRecorder(store, DefaultConfig(), WithMetrics(metrics), WithClock(func() time.Time { return recordedAt }))

	for i := 0; i < 25; i++ {
		if err := rec.RecordDecision(context.Background(), testDecision()); err != nil {
			t.Fatalf("RecordDecision() error = %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	records, err := store.Query(context.Background(), &evidence.Query{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(records) != 25 {
		t.Fatalf("stored %d records after Close, want 25", len(records))
	}
	if ok, failed := metrics.counts(); ok != 25 || failed != 0 {
		t.Errorf("metrics ok=%d failed=%d, want 25/0", ok, failed)
	}

	r := records[0]
	if r.ID == "" || r.RequestID != "req-1" || r.Requester != "alice" || r.BundleVersion != "v7" {
		t.Errorf("record = %+v", r)
	}
	if !r.EvaluatedAt.Equal(evaluatedAt) || !r.RecordedAt.Equal(recordedAt) {
		t.Errorf("EvaluatedAt = %v, RecordedAt = %v", r.EvaluatedAt, r.RecordedAt)
	}
	if r.Outcome != "non_compliant" || r.ViolationCount() != 1 {
		t.Errorf("Outcome = %q, ViolationCount() = %d", r.Outcome, r.ViolationCount())
	}

	seen := map[string]bool{}
	for _, r := range records {
		if seen[r.ID] {
			t.Fatalf("duplicate record id %s", r.ID)
		}
		seen[r.ID] = true
	}
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	rec := NewRecorder(storage.NewMemoryStorage(), DefaultConfig())
	rec.Close()
	if err := rec.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	err := rec.RecordDecision(context.Background(), testDecision())
	if !errors.Is(err, evidence.ErrRecorderClosed) {
		t.Errorf("RecordDecision() after Close error = %v, want ErrRecorderClosed", err)
	}
}

func TestRecorder_QueueFull(t *testing.T) {
	store := &blockingStorage{MemoryStorage: storage.NewMemoryStorage(), release: make(chan struct{})}
	metrics := &countingMetrics{}
	rec := NewRecorder(store, Config{AsyncBuffer: 1, WriteTimeout: 50 * time.Millisecond}, WithMetrics(metrics))

	// The worker takes the first record and blocks in Store; the second
	// fills the queue; the third times out.
	var errs []error
	for i := 0; i < 3; i++ {
		errs = append(errs, rec.RecordDecision(context.Background(), testDecision()))
		time.Sleep(10 * time.Millisecond)
	}

	dropped := 0
	for _, err := range errs {
		if errors.Is(err, evidence.ErrQueueFull) {
			dropped++
		} else if err != nil {
			t.Errorf("RecordDecision() error = %v", err)
		}
	}
	if dropped == 0 {
		t.Error("no record dropped with a full queue")
	}

	close(store.release)
	rec.Close()

	count, _ := store.Count(context.Background(), &evidence.Query{})
	if int(count)+dropped != 3 {
		t.Errorf("stored %d + dropped %d, want 3", count, dropped)
	}
	if _, failed := metrics.counts(); failed != dropped {
		t.Errorf("failed writes = %d, want %d", failed, dropped)
	}
}

func TestRecorder_StorageFailure(t *testing.T) {
	metrics := &countingMetrics{}
	rec := NewRecorder(failingStorage{storage.NewMemoryStorage()}, DefaultConfig(), WithMetrics(metrics))

	// The write fails on the worker; the caller is not told.
	if err := rec.RecordDecision(context.Background(), testDecision()); err != nil {
		t.Fatalf("RecordDecision() error = %v", err)
	}
	rec.Close()

	if ok, failed := metrics.counts(); ok != 0 || failed != 1 {
		t.Errorf("metrics ok=%d failed=%d, want 0/1", ok, failed)
	}
}

func TestBuildRecord_Redaction(t *testing.T) {
	rec := NewRecorder(storage.NewMemoryStorage(), Config{RedactFields: []string{"subject_dn", "absent"}})
	defer rec.Close()

	d := testDecision()
	r, err := rec.BuildRecord(d)
	if err != nil {
		t.Fatalf("BuildRecord() error = %v", err)
	}

	var ctx domain.Context
	if err := json.Unmarshal([]byte(`{"fields":`+string(r.Context)+`}`), &ctx); err != nil {
		t.Fatalf("stored context does not decode: %v", err)
	}

	dn, ok := ctx.Get("subject_dn")
	if !ok {
		t.Fatal("redacted field missing")
	}
	s, ok := dn.(ast.String)
	if !ok || !strings.HasPrefix(string(s), RedactedPrefix) {
		t.Errorf("subject_dn = %v, want %s<hex>", dn, RedactedPrefix)
	}
	if strings.Contains(string(r.Context), "payments.internal") {
		t.Error("redacted value leaked into stored context")
	}
	if alg, _ := ctx.Get("algorithm"); !ast.ValuesEqual(alg, ast.String("RSA")) {
		t.Errorf("algorithm = %v, want RSA", alg)
	}
	if _, ok := ctx.Get("absent"); ok {
		t.Error("redaction added a field that was not present")
	}

	// The hash covers the unredacted context.
	want, _ := HashContext(d.Context)
	if r.ContextHash != want {
		t.Errorf("ContextHash = %s, want %s", r.ContextHash, want)
	}
	if d.Context.Fields["subject_dn"] != ast.String("CN=payments.internal") {
		t.Error("redaction modified the caller's context")
	}
}

func TestHashContext(t *testing.T) {
	a := testDecision().Context
	b := testDecision().Context
	ha, err := HashContext(a)
	if err != nil {
		t.Fatalf("HashContext() error = %v", err)
	}
	hb, _ := HashContext(b)
	if ha != hb || len(ha) != 64 {
		t.Errorf("equal contexts hash to %s and %s", ha, hb)
	}

	hc, _ := HashContext(a.WithField("key_size", ast.Integer(4096)))
	if hc == ha {
		t.Error("different contexts hash equally")
	}

	if HashContent(nil) != "" {
		t.Error("HashContent(nil) should be empty")
	}
}

func TestBuildRecord_ZeroTimestamp(t *testing.T) {
	now := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
	rec := NewRecorder(storage.NewMemoryStorage(), DefaultConfig(), WithClock(func() time.Time { return now }))
	defer rec.Close()

	d := testDecision()
	d.Context.Timestamp = time.Time{}
	r, err := rec.BuildRecord(d)
	if err != nil {
		t.Fatalf("BuildRecord() error = %v", err)
	}
	if !r.EvaluatedAt.Equal(now) {
		t.Errorf("EvaluatedAt = %v, want %v", r.EvaluatedAt, now)
	}
}
