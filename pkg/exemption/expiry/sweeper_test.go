package expiry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/eventstore"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
	"mercator-hq/tribune/pkg/repository"
)

var sweepTime = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

type countingRecorder struct {
	sweeps  int
	expired int
	errs    int
}

func (r *countingRecorder) RecordSweep(result *Result, err error) {
	r.sweeps++
	r.expired += len(result.Expired)
	if err != nil {
		r.errs++
	}
}

func grant(t *testing.T, repo *repository.Repository[domain.Exemption], until time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	granted := event.ExemptionGranted{
		ExemptionID: id,
		PolicyID:    uuid.New(),
		GrantedBy:   "ciso",
		Reason:      "legacy HSM",
		ValidFrom:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil:  until,
		Scope:       domain.ExemptionScope{Kind: domain.ScopeGlobal},
	}
	if err := repo.Save(context.Background(), []event.Event{
		event.New(id, granted, "ciso", granted.ValidFrom),
	}); err != nil {
		t.Fatalf("Save(grant) error = %v", err)
	}
	return id
}

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	store, err := eventstore.NewSQLiteStore(eventstore.SQLiteConfig{Path: filepath.Join(t.TempDir(), "events.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()
	repo := repository.NewExemptionRepository(store)

	past := grant(t, repo, sweepTime.Add(-time.Hour))
	future := grant(t, repo, sweepTime.Add(24*time.Hour))
	revoked := grant(t, repo, sweepTime.Add(-48*time.Hour))
	if err := repo.Save(ctx, []event.Event{
		event.New(revoked, event.ExemptionRevoked{ExemptionID: revoked, RevokedBy: "ciso", Reason: "replaced"}, "ciso", sweepTime.Add(-72*time.Hour)),
	}); err != nil {
		t.Fatal(err)
	}

	rec := &countingRecorder{}
	sweeper := NewSweeper(repo, WithClock(func() time.Time { return sweepTime }), WithRecorder(rec))

	result, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Scanned != 3 {
		t.Errorf("Scanned = %d, want 3", result.Scanned)
	}
	if len(result.Expired) != 1 || result.Expired[0] != past {
		t.Fatalf("Expired = %v, want [%s]", result.Expired, past)
	}

	x, err := repo.Load(ctx, past)
	if err != nil {
		t.Fatal(err)
	}
	if x.Status.State != domain.ExemptionExpired || x.Revision != 2 {
		t.Errorf("expired exemption = status %s revision %d", x.Status.State, x.Revision)
	}
	if x, _ := repo.Load(ctx, future); x.Status.State != domain.ExemptionActive {
		t.Errorf("future exemption status = %s, want active", x.Status.State)
	}
	if x, _ := repo.Load(ctx, revoked); x.Status.State != domain.ExemptionRevoked {
		t.Errorf("revoked exemption status = %s, want revoked", x.Status.State)
	}

	// A second sweep finds nothing new.
	result, err = sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if len(result.Expired) != 0 {
		t.Errorf("second Sweep() expired %v", result.Expired)
	}
	if rec.sweeps != 2 || rec.expired != 1 || rec.errs != 0 {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestSweeper_ExpiredEvent(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	repo := repository.NewExemptionRepository(store)
	until := sweepTime.Add(-time.Minute)
	id := grant(t, repo, until)

	if _, err := NewSweeper(repo, WithClock(func() time.Time { return sweepTime })).Sweep(ctx); err != nil {
		t.Fatal(err)
	}

	events, err := store.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("stream has %d events, want 2", len(events))
	}
	last := events[1]
	p, ok := last.Payload.(event.ExemptionExpired)
	if !ok {
		t.Fatalf("last event payload = %T, want ExemptionExpired", last.Payload)
	}
	if !p.ExpiredAt.Equal(until) || last.Actor != Actor || !last.Timestamp.Equal(sweepTime) || last.Seq != 2 {
		t.Errorf("expiry event = %+v, payload %+v", last, p)
	}
}

func TestSweeper_CancelledContext(t *testing.T) {
	repo := repository.NewExemptionRepository(eventstore.NewMemoryStore())
	grant(t, repo, sweepTime.Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &countingRecorder{}
	_, err := NewSweeper(repo, WithClock(func() time.Time { return sweepTime }), WithRecorder(rec)).Sweep(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Sweep() error = %v, want context.Canceled", err)
	}
	if rec.errs != 1 {
		t.Errorf("recorder errs = %d, want 1", rec.errs)
	}
}

func TestScheduler_Start(t *testing.T) {
	sweeper := NewSweeper(repository.NewExemptionRepository(eventstore.NewMemoryStore()))

	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{name: "every five minutes", schedule: "*/5 * * * *", wantRunning: true},
		{name: "descriptor", schedule: "@hourly", wantRunning: true},
		{name: "empty schedule", schedule: "", wantRunning: false},
		{name: "invalid schedule", schedule: "invalid cron", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			scheduler := NewScheduler(sweeper, tt.schedule, time.Second)
			err := scheduler.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Fatalf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", scheduler.IsRunning(), tt.wantRunning)
			}
			if tt.wantRunning && scheduler.NextRun() == nil {
				t.Error("NextRun() returned nil for running scheduler")
			}

			scheduler.Stop()
			if scheduler.IsRunning() {
				t.Error("scheduler still running after Stop()")
			}
			if scheduler.NextRun() != nil {
				t.Error("NextRun() after Stop() should be nil")
			}
		})
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	scheduler := NewScheduler(NewSweeper(repository.NewExemptionRepository(eventstore.NewMemoryStore())), "@every 1h", 0)

	ctx, cancel := context.WithCancel(context.Background())
	if err := scheduler.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for scheduler.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler still running after context cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	repo := repository.NewExemptionRepository(eventstore.NewMemoryStore())
	id := grant(t, repo, sweepTime.Add(-time.Hour))
	scheduler := NewScheduler(NewSweeper(repo, WithClock(func() time.Time { return sweepTime })), "", time.Second)

	result, err := scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(result.Expired) != 1 || result.Expired[0] != id {
		t.Errorf("RunOnce() expired %v, want [%s]", result.Expired, id)
	}
}
