package event

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
)

var (
	at       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policyID = uuid.MustParse("6f1c2c1e-7a55-4d7e-9d50-1c1b0f9f5a01")
	setID    = uuid.MustParse("0b8a3c4d-2e1f-4a5b-8c6d-7e8f9a0b1c2d")
	exID     = uuid.MustParse("9d2e7f80-3b4c-4d5e-a6f7-081920a1b2c3")
)

func samplePayloads() []Payload {
	until := at.Add(30 * 24 * time.Hour)
	level := domain.EnforcementHard
	desc := "tightened"
	return []Payload{
		PolicyCreated{
			PolicyID:         policyID,
			Name:             "Key strength",
			Version:          1,
			Rules:            []domain.Rule{domain.MinKeySize(2048)},
			Target:           domain.ResourceTarget(domain.ResourceKey),
			EnforcementLevel: domain.EnforcementSoft,
			CreatedBy:        "alice",
			CreatedAt:        at,
		},
		PolicyUpdated{PolicyID: policyID, Version: 2, Description: &desc, EnforcementLevel: &level, UpdatedBy: "alice"},
		PolicySubmitted{PolicyID: policyID, SubmittedBy: "alice"},
		PolicyReviewRejected{PolicyID: policyID, RejectedBy: "bob", Reason: "too strict", ReturnToDraft: true},
		PolicyApproved{PolicyID: policyID, ApprovedBy: "bob"},
		PolicyActivated{PolicyID: policyID, ActivatedBy: "bob", EffectiveUntil: &until},
		PolicySuspended{PolicyID: policyID, SuspendedBy: "carol", Reason: "incident"},
		PolicyRevoked{PolicyID: policyID, RevokedBy: "carol", Reason: "replaced", Immediate: true},
		PolicyArchived{PolicyID: policyID, ArchivedBy: "carol", RetentionDays: 365},
		PolicyEvaluated{PolicyID: policyID, EvaluationID: uuid.New(), Outcome: domain.OutcomeCompliant},
		PolicyViolationDetected{
			PolicyID:     policyID,
			EvaluationID: uuid.New(),
			Violations:   []domain.Violation{{PolicyID: policyID, RuleID: "min-key-size", Severity: domain.SeverityCritical}},
			Severity:     domain.SeverityCritical,
		},
		PolicyCompliancePassed{PolicyID: policyID, EvaluationID: uuid.New(), RulesEvaluated: 3},
		PolicyEnforced{EnforcementID: uuid.New(), PolicyIDs: []uuid.UUID{policyID}, Action: domain.ActionBlock},
		ExemptionReviewStarted{RequestID: uuid.New(), PolicyID: policyID, Reviewer: "dave"},
		ExemptionDenied{RequestID: uuid.New(), PolicyID: policyID, DeniedBy: "dave", Reason: "no"},
		ExemptionGranted{
			ExemptionID: exID,
			PolicyID:    policyID,
			GrantedBy:   "dave",
			Reason:      "legacy HSM",
			ValidFrom:   at,
			ValidUntil:  until,
			Scope:       domain.ExemptionScope{Kind: domain.ScopeUser, User: "erin"},
			Conditions: []domain.ExemptionCondition{
				{Field: "key_size", Operator: domain.ConditionGreaterThan, Value: ast.Integer(1024)},
			},
		},
		ExemptionRevoked{ExemptionID: exID, PolicyID: policyID, RevokedBy: "dave", Reason: "fixed"},
		ExemptionExpired{ExemptionID: exID, PolicyID: policyID, ExpiredAt: until},
		PolicySetCreated{
			SetID:              setID,
			Name:               "PKI baseline",
			Composition:        domain.AtLeast(2),
			ConflictResolution: domain.ResolveMostRestrictive,
			CreatedBy:          "alice",
			CreatedAt:          at,
		},
		PolicyAddedToSet{SetID: setID, PolicyID: policyID, AddedBy: "alice"},
		PolicyRemovedFromSet{SetID: setID, PolicyID: policyID, RemovedBy: "alice"},
		PolicySetActivated{SetID: setID, ActivatedBy: "alice"},
		PolicyConflictDetected{SetID: setID, Conflict: domain.PolicyConflict{
			ID:        uuid.New(),
			PolicyIDs: []uuid.UUID{policyID},
			RuleIDs:   []string{"a", "b"},
			Type:      domain.ConflictContradiction,
		}},
	}
}

func TestCodecCoversEveryType(t *testing.T) {
	seen := make(map[Type]bool)
	for _, p := range samplePayloads() {
		seen[p.EventType()] = true

		e := New(uuid.New(), p, "tester", at)
		e.Seq = 7
		rec, err := Encode(e)
		if err != nil {
			t.Fatalf("Encode(%s) error = %v", p.EventType(), err)
		}
		got, err := Decode(rec)
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", p.EventType(), err)
		}
		if got.Type != e.Type || got.Seq != 7 || got.AggregateType != p.Aggregate() {
			t.Errorf("%s envelope mismatch: %+v", p.EventType(), got)
		}
		if reflect.TypeOf(got.Payload) != reflect.TypeOf(p) {
			t.Errorf("%s payload type = %T, want %T", p.EventType(), got.Payload, p)
		}
	}

	for _, typ := range Types() {
		if !seen[typ] {
			t.Errorf("no sample payload for %s", typ)
		}
	}
}

func TestDecode_PreservesExpressions(t *testing.T) {
	created := samplePayloads()[0].(PolicyCreated)
	rec, err := Encode(New(policyID, created, "alice", at))
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(rec)
	if err != nil {
		t.Fatal(err)
	}
	rules := got.Payload.(PolicyCreated).Rules
	if len(rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(rules))
	}
	want := ast.GreaterThanOrEqual{Field: "key_size", Value: ast.Integer(2048)}
	if !reflect.DeepEqual(rules[0].Expression, want) {
		t.Errorf("expression = %#v, want %#v", rules[0].Expression, want)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode(Record{Type: "policy.teleported", Payload: []byte(`{}`)})
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("Decode() error = %v, want ErrUnknownType", err)
	}
}

func TestNew_Correlation(t *testing.T) {
	first := New(policyID, PolicySubmitted{PolicyID: policyID}, "alice", at)
	if first.CorrelationID != first.ID {
		t.Errorf("default correlation = %s, want event id %s", first.CorrelationID, first.ID)
	}

	next := New(policyID, PolicyApproved{PolicyID: policyID}, "bob", at, CausedBy(first))
	if next.CorrelationID != first.CorrelationID || next.CausationID != first.ID {
		t.Errorf("caused event = %+v", next)
	}
}

func TestIsCreation(t *testing.T) {
	for _, p := range samplePayloads() {
		want := p.EventType() == TypePolicyCreated ||
			p.EventType() == TypePolicySetCreated ||
			p.EventType() == TypeExemptionGranted
		if got := IsCreation(p.EventType()); got != want {
			t.Errorf("IsCreation(%s) = %v, want %v", p.EventType(), got, want)
		}
	}
}

func TestPolicyEvaluatedResult(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		payload PolicyEvaluated
		want    domain.Outcome
	}{
		{"compliant", PolicyEvaluated{Outcome: domain.OutcomeCompliant}, domain.OutcomeCompliant},
		{"exempt", PolicyEvaluated{Outcome: domain.OutcomeCompliantWithExemption, ExemptionID: &id}, domain.OutcomeCompliantWithExemption},
		{"violations", PolicyEvaluated{Outcome: domain.OutcomeNonCompliant}, domain.OutcomeNonCompliant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.payload.Result().Outcome(); got != tt.want {
				t.Errorf("Result().Outcome() = %s, want %s", got, tt.want)
			}
		})
	}
}
