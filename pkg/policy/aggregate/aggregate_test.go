package aggregate

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

var t0 = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

// history stamps payloads for one aggregate with increasing seq and time.
func history(id uuid.UUID, payloads ...event.Payload) []event.Event {
	out := make([]event.Event, len(payloads))
	for i, p := range payloads {
		e := event.New(id, p, "tester", t0.Add(time.Duration(i)*time.Minute))
		e.Seq = uint64(i + 1)
		out[i] = e
	}
	return out
}

func policyLifecycle(id uuid.UUID) []event.Event {
	return history(id,
		event.PolicyCreated{
			PolicyID:         id,
			Name:             "Key strength",
			Rules:            []domain.Rule{domain.MinKeySize(2048)},
			Target:           domain.GlobalTarget(),
			EnforcementLevel: domain.EnforcementHard,
			CreatedBy:        "alice",
			CreatedAt:        t0,
		},
		event.PolicySubmitted{PolicyID: id, SubmittedBy: "alice"},
		event.PolicyApproved{PolicyID: id, ApprovedBy: "bob"},
		event.PolicyActivated{PolicyID: id, ActivatedBy: "bob"},
	)
}

func TestFoldPolicy_Lifecycle(t *testing.T) {
	id := uuid.New()
	p, err := FoldPolicy(policyLifecycle(id))
	if err != nil {
		t.Fatalf("FoldPolicy() error = %v", err)
	}
	if p.Status != domain.StatusActive {
		t.Errorf("Status = %s, want active", p.Status)
	}
	if p.Version != 1 || p.Revision != 4 {
		t.Errorf("Version = %d, Revision = %d, want 1 and 4", p.Version, p.Revision)
	}
	if len(p.Rules) != 1 || p.Rules[0].ID != "min-key-size" {
		t.Errorf("Rules = %+v", p.Rules)
	}
	if !p.Metadata.UpdatedAt.Equal(t0.Add(3 * time.Minute)) {
		t.Errorf("UpdatedAt = %v", p.Metadata.UpdatedAt)
	}
}

func TestFoldPolicy_Empty(t *testing.T) {
	p, err := FoldPolicy(nil)
	if err != nil || p != nil {
		t.Fatalf("FoldPolicy(nil) = %v, %v; want nil, nil", p, err)
	}
}

func TestFold_InvalidFirstEvent(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		fold func() error
	}{
		{"policy", func() error {
			_, err := FoldPolicy(history(id, event.PolicyApproved{PolicyID: id}))
			return err
		}},
		{"policy set", func() error {
			_, err := FoldPolicySet(history(id, event.PolicyAddedToSet{SetID: id, PolicyID: uuid.New()}))
			return err
		}},
		{"exemption", func() error {
			_, err := FoldExemption(history(id, event.ExemptionRevoked{ExemptionID: id}))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fold()
			if !errors.Is(err, ErrInvalidSequence) {
				t.Fatalf("error = %v, want ErrInvalidSequence", err)
			}
			var seqErr *SequenceError
			if !errors.As(err, &seqErr) || seqErr.Seq != 1 {
				t.Errorf("SequenceError = %+v", seqErr)
			}
		})
	}
}

func TestApplyPolicy_DuplicateCreation(t *testing.T) {
	id := uuid.New()
	events := policyLifecycle(id)
	events = append(events, events[0])
	if _, err := FoldPolicy(events); !errors.Is(err, ErrInvalidSequence) {
		t.Fatalf("FoldPolicy() error = %v, want ErrInvalidSequence", err)
	}
}

func TestApplyPolicy_IgnoresOtherAggregates(t *testing.T) {
	id := uuid.New()
	p, err := FoldPolicy(policyLifecycle(id))
	if err != nil {
		t.Fatal(err)
	}

	others := []event.Event{
		event.New(uuid.New(), event.PolicySetActivated{}, "x", t0),
		event.New(uuid.New(), event.ExemptionExpired{}, "x", t0),
		event.New(uuid.New(), event.PolicySuspended{}, "x", t0),
	}
	for _, e := range others {
		got, err := ApplyPolicy(p, e)
		if err != nil {
			t.Fatalf("ApplyPolicy(%s) error = %v", e.Type, err)
		}
		if got != p {
			t.Errorf("ApplyPolicy(%s) changed state", e.Type)
		}
	}
}

func TestApplyPolicy_DoesNotMutateInput(t *testing.T) {
	id := uuid.New()
	p, err := FoldPolicy(policyLifecycle(id))
	if err != nil {
		t.Fatal(err)
	}
	before := p.Clone()

	e := history(id, event.PolicySuspended{PolicyID: id, Reason: "incident"})[0]
	next, err := ApplyPolicy(p, e)
	if err != nil {
		t.Fatal(err)
	}
	if next.Status != domain.StatusSuspended {
		t.Errorf("next.Status = %s, want suspended", next.Status)
	}
	if !reflect.DeepEqual(p, before) {
		t.Error("ApplyPolicy modified its input")
	}
}

func TestApplyPolicy_Update(t *testing.T) {
	id := uuid.New()
	desc := "stricter"
	level := domain.EnforcementCritical
	events := append(policyLifecycle(id), history(id,
		event.PolicyUpdated{PolicyID: id, Version: 3, Description: &desc, EnforcementLevel: &level},
		event.PolicyUpdated{PolicyID: id, Version: 2, Rules: []domain.Rule{domain.MaxValidityDays(90)}},
	)...)

	p, err := FoldPolicy(events)
	if err != nil {
		t.Fatal(err)
	}
	if p.Version != 3 {
		t.Errorf("Version = %d, want 3 (never decreases)", p.Version)
	}
	if p.Description != desc || p.EnforcementLevel != level {
		t.Errorf("update not applied: %+v", p)
	}
	if len(p.Rules) != 1 || p.Rules[0].ID != "max-validity-days" {
		t.Errorf("Rules = %+v", p.Rules)
	}
}

func TestApplyPolicy_ReviewRejected(t *testing.T) {
	id := uuid.New()
	events := policyLifecycle(id)[:2]
	events = append(events, history(id, event.PolicyReviewRejected{PolicyID: id, ReturnToDraft: true})...)
	p, err := FoldPolicy(events)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != domain.StatusDraft {
		t.Errorf("Status = %s, want draft", p.Status)
	}
}

func TestFoldPolicySet_Membership(t *testing.T) {
	id := uuid.New()
	a, b := uuid.New(), uuid.New()
	s, err := FoldPolicySet(history(id,
		event.PolicySetCreated{SetID: id, Name: "baseline", Composition: domain.Majority()},
		event.PolicyAddedToSet{SetID: id, PolicyID: a},
		event.PolicyAddedToSet{SetID: id, PolicyID: a},
		event.PolicyAddedToSet{SetID: id, PolicyID: b},
		event.PolicyRemovedFromSet{SetID: id, PolicyID: uuid.New()},
		event.PolicyRemovedFromSet{SetID: id, PolicyID: b},
		event.PolicySetActivated{SetID: id},
	))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s.Policies, []uuid.UUID{a}) {
		t.Errorf("Policies = %v, want [%s]", s.Policies, a)
	}
	if s.Composition != domain.Majority() || s.ConflictResolution != domain.ResolveMostRestrictive {
		t.Errorf("strategies = %v / %v", s.Composition, s.ConflictResolution)
	}
	if s.Status != domain.StatusActive || s.Revision != 7 {
		t.Errorf("Status = %s, Revision = %d", s.Status, s.Revision)
	}
}

func TestFoldExemption(t *testing.T) {
	id := uuid.New()
	policyID := uuid.New()
	granted := event.ExemptionGranted{
		ExemptionID: id,
		PolicyID:    policyID,
		GrantedBy:   "ciso",
		Reason:      "legacy",
		ValidFrom:   t0,
		ValidUntil:  t0.Add(24 * time.Hour),
		Scope:       domain.ExemptionScope{Kind: domain.ScopeGlobal},
	}
	regrant := granted
	regrant.Scope = domain.ExemptionScope{Kind: domain.ScopeUser, User: "erin"}
	regrant.ValidUntil = t0.Add(48 * time.Hour)

	tests := []struct {
		name      string
		payloads  []event.Payload
		wantState domain.ExemptionState
		wantScope domain.ScopeKind
		wantRev   uint64
	}{
		{"granted", []event.Payload{granted}, domain.ExemptionActive, domain.ScopeGlobal, 1},
		{"regranted", []event.Payload{granted, regrant}, domain.ExemptionActive, domain.ScopeUser, 2},
		{"revoked", []event.Payload{granted, event.ExemptionRevoked{ExemptionID: id, RevokedBy: "ciso"}}, domain.ExemptionRevoked, domain.ScopeGlobal, 2},
		{"terminal ignores later events", []event.Payload{
			granted,
			event.ExemptionExpired{ExemptionID: id},
			event.ExemptionRevoked{ExemptionID: id},
			regrant,
		}, domain.ExemptionExpired, domain.ScopeGlobal, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := FoldExemption(history(id, tt.payloads...))
			if err != nil {
				t.Fatal(err)
			}
			if x.Status.State != tt.wantState || x.Scope.Kind != tt.wantScope || x.Revision != tt.wantRev {
				t.Errorf("got state=%s scope=%s rev=%d", x.Status.State, x.Scope.Kind, x.Revision)
			}
		})
	}
}

func TestFoldExemption_RevokedDetails(t *testing.T) {
	id := uuid.New()
	x, err := FoldExemption(history(id,
		event.ExemptionGranted{ExemptionID: id, ValidFrom: t0, ValidUntil: t0.Add(time.Hour)},
		event.ExemptionRevoked{ExemptionID: id, RevokedBy: "ciso", Reason: "fixed"},
	))
	if err != nil {
		t.Fatal(err)
	}
	if x.Status.RevokedBy != "ciso" || x.Status.Reason != "fixed" || x.Status.RevokedAt == nil {
		t.Errorf("Status = %+v", x.Status)
	}
	if x.IsValid(t0.Add(time.Minute)) {
		t.Error("revoked exemption reported valid")
	}
}

func TestFoldPolicy_ReplayIsRepeatable(t *testing.T) {
	id := uuid.New()
	events := policyLifecycle(id)
	first, err := FoldPolicy(events)
	if err != nil {
		t.Fatal(err)
	}
	second, err := FoldPolicy(events)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("replay differs:\n%+v\n%+v", first, second)
	}
}
