package saga

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/command"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

func passed(policyID uuid.UUID) event.Event {
	return policyEvent(policyID, event.PolicyEvaluated{PolicyID: policyID, Outcome: domain.OutcomeCompliant})
}

func violated(policyID uuid.UUID, severity domain.Severity, details string) event.Event {
	return policyEvent(policyID, event.PolicyViolationDetected{
		PolicyID: policyID,
		Severity: severity,
		Violations: []domain.Violation{{
			PolicyID:        policyID,
			RuleID:          "min-key-size",
			RuleDescription: "Minimum Key Size",
			Severity:        severity,
			Details:         details,
			Remediation:     "use a 2048-bit key",
		}},
	})
}

func TestEnforcementSaga_Block(t *testing.T) {
	a, b := newID(), newID()
	s := NewEnforcementSaga([]uuid.UUID{a, b}, domain.All(), "gateway", WithClock(fixedClock))

	cmds := s.Commands()
	if len(cmds) != 2 {
		t.Fatalf("Commands() = %v, want two EvaluatePolicy", cmds)
	}
	for _, c := range cmds {
		if _, ok := c.(command.EvaluatePolicy); !ok {
			t.Fatalf("command %#v, want EvaluatePolicy", c)
		}
	}

	if err := s.ApplyEvent(passed(a)); err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}
	if s.CurrentState() != StateEvaluating {
		t.Fatalf("state = %s, want %s", s.CurrentState(), StateEvaluating)
	}
	cmds = s.Commands()
	if len(cmds) != 1 || cmds[0].(command.EvaluatePolicy).PolicyID != b {
		t.Fatalf("Commands() = %v, want evaluation of b only", cmds)
	}

	if err := s.ApplyEvent(violated(b, domain.SeverityHigh, "key too short")); err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}
	if s.CurrentState() != StateEnforcing || s.Decision() != domain.ActionBlock {
		t.Fatalf("state = %s, decision = %s", s.CurrentState(), s.Decision())
	}
	cmds = s.Commands()
	if len(cmds) != 1 {
		t.Fatalf("Commands() = %v, want one EnforcePolicy", cmds)
	}
	enforce, ok := cmds[0].(command.EnforcePolicy)
	if !ok || enforce.Action != domain.ActionBlock || !slices.Equal(enforce.PolicyIDs, []uuid.UUID{a, b}) {
		t.Fatalf("Commands()[0] = %#v", cmds[0])
	}

	enforced := event.New(newID(), event.PolicyEnforced{PolicyIDs: []uuid.UUID{a, b}, Action: domain.ActionBlock}, "gateway", now)
	if err := s.ApplyEvent(enforced); err != nil {
		t.Fatalf("ApplyEvent(enforced) error = %v", err)
	}
	if s.CurrentState() != StateBlocked || !s.IsComplete() || s.HasFailed() {
		t.Errorf("state = %s", s.CurrentState())
	}
	if !slices.Equal(s.RemediationSteps(), []string{"use a 2048-bit key"}) || !s.HasRemediationPath() {
		t.Errorf("RemediationSteps() = %v", s.RemediationSteps())
	}
}

func TestEnforcementSaga_Decision(t *testing.T) {
	tests := []struct {
		name        string
		composition domain.CompositionRule
		compliant   int
		want        domain.EnforcementAction
	}{
		{name: "all satisfied", composition: domain.All(), compliant: 3, want: domain.ActionAllow},
		{name: "all unmet", composition: domain.All(), compliant: 2, want: domain.ActionBlock},
		{name: "majority satisfied", composition: domain.Majority(), compliant: 2, want: domain.ActionAllowWithWarning},
		{name: "majority unmet", composition: domain.Majority(), compliant: 1, want: domain.ActionBlock},
		{name: "any", composition: domain.Any(), compliant: 1, want: domain.ActionAllow},
		{name: "at least", composition: domain.AtLeast(2), compliant: 2, want: domain.ActionAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := []uuid.UUID{newID(), newID(), newID()}
			s := NewEnforcementSaga(ids, tt.composition, "gateway")
			for i, id := range ids {
				var result domain.ComplianceResult = domain.Compliant{}
				if i >= tt.compliant {
					result = domain.NonCompliant{}
				}
				if err := s.AddResult(id, result); err != nil {
					t.Fatalf("AddResult() error = %v", err)
				}
			}
			if s.Decision() != tt.want {
				t.Errorf("Decision() = %s, want %s", s.Decision(), tt.want)
			}
		})
	}
}

func TestEnforcementSaga_FirstResultWins(t *testing.T) {
	a, b := newID(), newID()
	s := NewEnforcementSaga([]uuid.UUID{a, b}, domain.All(), "gateway")

	// An evaluation emits both PolicyEvaluated and PolicyViolationDetected.
	if err := s.ApplyEvent(passed(a)); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyEvent(violated(a, domain.SeverityLow, "late duplicate")); err != nil {
		t.Fatal(err)
	}
	if r, _ := s.Result(a); !domain.IsCompliant(r) {
		t.Errorf("Result(a) = %#v, want the first result", r)
	}
	if err := s.ApplyEvent(passed(newID())); err != nil {
		t.Fatal(err)
	}
	if s.CurrentState() != StateEvaluating {
		t.Errorf("state = %s, want %s", s.CurrentState(), StateEvaluating)
	}
}

func TestEnforcementSaga_Outcomes(t *testing.T) {
	tests := []struct {
		action domain.EnforcementAction
		want   State
	}{
		{domain.ActionAllow, StateAllowed},
		{domain.ActionAllowWithWarning, StateAllowed},
		{domain.ActionRedirect, StateRemediation},
		{domain.ActionQuarantine, StateBlocked},
		{domain.ActionBlock, StateBlocked},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			id := newID()
			s := NewEnforcementSaga([]uuid.UUID{id}, domain.All(), "gateway")
			if err := s.ApplyEvent(passed(id)); err != nil {
				t.Fatal(err)
			}
			enforced := event.New(newID(), event.PolicyEnforced{PolicyIDs: []uuid.UUID{id}, Action: tt.action}, "gateway", now)
			if err := s.ApplyEvent(enforced); err != nil {
				t.Fatalf("ApplyEvent() error = %v", err)
			}
			if s.CurrentState() != tt.want {
				t.Errorf("state = %s, want %s", s.CurrentState(), tt.want)
			}
		})
	}
}

func TestEnforcementSaga_EnforcedTooEarly(t *testing.T) {
	id := newID()
	s := NewEnforcementSaga([]uuid.UUID{id}, domain.All(), "gateway")

	enforced := event.New(newID(), event.PolicyEnforced{PolicyIDs: []uuid.UUID{id}, Action: domain.ActionAllow}, "gateway", now)
	if err := s.ApplyEvent(enforced); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ApplyEvent() error = %v, want ErrInvalidTransition", err)
	}
	if s.CurrentState() != StateInitiated {
		t.Errorf("state = %s, want %s", s.CurrentState(), StateInitiated)
	}
}

func TestEnforcementSaga_Deadline(t *testing.T) {
	a, b := newID(), newID()
	s := NewEnforcementSaga([]uuid.UUID{a, b}, domain.All(), "gateway")
	s.SetDeadline(now.Add(time.Minute))

	if err := s.CheckDeadline(now); err != nil {
		t.Fatalf("CheckDeadline(before) error = %v", err)
	}
	if err := s.ApplyEvent(passed(a)); err != nil {
		t.Fatal(err)
	}
	err := s.CheckDeadline(now.Add(2 * time.Minute))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("CheckDeadline(after) error = %v, want ErrTimeout", err)
	}
	if !s.HasFailed() || s.IsComplete() {
		t.Errorf("state = %s, want %s", s.CurrentState(), StateFailed)
	}
	if len(s.Commands()) != 0 {
		t.Error("failed saga emitted commands")
	}
}
