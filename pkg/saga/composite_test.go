package saga

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/command"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

// stubSaga sits in a fixed state.
type stubSaga struct {
	state   State
	applied int
}

func (s *stubSaga) Kind() Kind                         { return KindComposite }
func (s *stubSaga) Metadata() Metadata                 { return Metadata{} }
func (s *stubSaga) CurrentState() State                { return s.state }
func (s *stubSaga) AvailableTransitions() []Transition { return nil }
func (s *stubSaga) Chain() *MarkovChain                { return NewMarkovChain() }
func (s *stubSaga) Commands() []command.Command        { return nil }
func (s *stubSaga) IsComplete() bool                   { return s.state == StateCompleted }
func (s *stubSaga) HasFailed() bool                    { return s.state == StateFailed }

func (s *stubSaga) ApplyEvent(event.Event) error {
	s.applied++
	return nil
}

func submitted(policyID uuid.UUID) event.Event {
	return policyEvent(policyID, event.PolicySubmitted{PolicyID: policyID})
}

func driveToActive(t *testing.T, c *CompositeSaga, policyID uuid.UUID) {
	t.Helper()
	for _, p := range []event.Payload{
		event.PolicySubmitted{PolicyID: policyID},
		event.PolicyApproved{PolicyID: policyID},
		event.PolicyActivated{PolicyID: policyID},
	} {
		if _, err := c.Coordinate(policyEvent(policyID, p)); err != nil {
			t.Fatalf("Coordinate(%s) error = %v", p.EventType(), err)
		}
	}
}

func TestCompositeSaga_All(t *testing.T) {
	p1, p2 := newID(), newID()
	first := NewApprovalSaga(p1, "alice")
	first.AddApproval("bob", LevelManager)
	first.AddApproval("carol", LevelDirector)
	second := NewApprovalSaga(p2, "alice")

	c := NewCompositeSaga("alice", domain.All())
	c.AddSubSaga(first)
	c.AddSubSaga(second)
	if c.CurrentState() != StateInitiated {
		t.Fatalf("state = %s", c.CurrentState())
	}

	cmds, err := c.Coordinate(submitted(p1))
	if err != nil {
		t.Fatalf("Coordinate() error = %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("Coordinate() commands = %v, want ApprovePolicy from the first sub-saga", cmds)
	}
	if approve, ok := cmds[0].(command.ApprovePolicy); !ok || approve.PolicyID != p1 {
		t.Fatalf("command = %#v", cmds[0])
	}
	if c.CurrentState() != StateInProgress {
		t.Fatalf("state = %s, want %s", c.CurrentState(), StateInProgress)
	}

	driveToActive(t, c, p2)
	if c.CheckCompletion() {
		t.Fatal("CheckCompletion() with one sub-saga open")
	}
	for _, p := range []event.Payload{event.PolicyApproved{PolicyID: p1}, event.PolicyActivated{PolicyID: p1}} {
		if _, err := c.Coordinate(policyEvent(p1, p)); err != nil {
			t.Fatal(err)
		}
	}
	if !c.IsComplete() || c.CurrentState() != StateCompleted {
		t.Fatalf("state = %s, want %s", c.CurrentState(), StateCompleted)
	}
	if len(c.Commands()) != 0 {
		t.Error("completed composite emitted commands")
	}
	if _, err := c.Coordinate(submitted(p1)); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("Coordinate() after completion error = %v, want ErrAlreadyCompleted", err)
	}
}

func TestCompositeSaga_Any(t *testing.T) {
	p1 := newID()
	c := NewCompositeSaga("alice", domain.Any())
	c.AddSubSaga(NewApprovalSaga(p1, "alice"))
	c.AddSubSaga(NewApprovalSaga(newID(), "alice"))

	driveToActive(t, c, p1)
	if !c.IsComplete() {
		t.Errorf("state = %s, want %s", c.CurrentState(), StateCompleted)
	}
}

func TestCompositeSaga_SubSagaFailure(t *testing.T) {
	p1, p2 := newID(), newID()
	rejected := NewApprovalSaga(p1, "alice")
	other := NewApprovalSaga(p2, "alice")
	c := NewCompositeSaga("alice", domain.All())
	c.AddSubSaga(rejected)
	c.AddSubSaga(other)

	for _, p := range []event.Payload{
		event.PolicySubmitted{PolicyID: p1},
		event.PolicyReviewRejected{PolicyID: p1, Reason: "no"},
	} {
		if _, err := c.Coordinate(policyEvent(p1, p)); err != nil {
			t.Fatal(err)
		}
	}
	if !c.HasFailed() {
		t.Fatalf("state = %s, want %s", c.CurrentState(), StateFailed)
	}
	if len(c.Commands()) != 0 {
		t.Error("failed composite emitted commands")
	}
	if _, err := c.Coordinate(submitted(p2)); !errors.Is(err, ErrSagaFailed) {
		t.Errorf("Coordinate() after failure error = %v, want ErrSagaFailed", err)
	}
	if other.CurrentState() != StateDraft {
		t.Errorf("failed composite still routed events: %s", other.CurrentState())
	}
}

func TestCompositeSaga_SubSagaErrorsAreJoined(t *testing.T) {
	p1 := newID()
	approvedEarly := NewApprovalSaga(p1, "alice")
	stub := &stubSaga{state: StateInProgress}
	c := NewCompositeSaga("alice", domain.All())
	c.AddSubSaga(approvedEarly)
	c.AddSubSaga(stub)

	_, err := c.Coordinate(policyEvent(p1, event.PolicyApproved{PolicyID: p1}))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Coordinate() error = %v, want ErrInvalidTransition", err)
	}
	if stub.applied != 1 {
		t.Errorf("stub received %d events, want 1", stub.applied)
	}
	if c.CurrentState() != StateInProgress {
		t.Errorf("state = %s, want %s", c.CurrentState(), StateInProgress)
	}
}

func TestCompositeSaga_Waiting(t *testing.T) {
	c := NewCompositeSaga("alice", domain.All())
	c.AddSubSaga(&stubSaga{state: StateWaiting})
	c.AddSubSaga(&stubSaga{state: StateWaiting})

	if _, err := c.Coordinate(submitted(newID())); err != nil {
		t.Fatal(err)
	}
	if c.CurrentState() != StateWaiting {
		t.Errorf("state = %s, want %s", c.CurrentState(), StateWaiting)
	}

	path := c.OptimalExecutionPath()
	if path[0] != StateWaiting || path[len(path)-1] != StateCompleted {
		t.Errorf("OptimalExecutionPath() = %v", path)
	}
}

func TestCompositeSaga_CompensationPlan(t *testing.T) {
	p1, p2 := newID(), newID()
	c := NewCompositeSaga("alice", domain.AtLeast(3))
	c.AddSubSaga(NewApprovalSaga(p1, "alice"))
	c.AddSubSaga(NewApprovalSaga(p2, "alice"))
	c.AddSubSaga(&stubSaga{state: StateInProgress})
	driveToActive(t, c, p1)
	driveToActive(t, c, p2)

	revoked := func(cmds []command.Command) []uuid.UUID {
		var ids []uuid.UUID
		for _, cmd := range cmds {
			ids = append(ids, cmd.(command.RevokePolicy).PolicyID)
		}
		return ids
	}

	tests := []struct {
		order CompensationOrder
		want  []uuid.UUID
	}{
		{CompensateReverse, []uuid.UUID{p2, p1}},
		{CompensateForward, []uuid.UUID{p1, p2}},
		{CompensateParallel, []uuid.UUID{p1, p2}},
	}
	for _, tt := range tests {
		plan := c.CompensationPlan(tt.order)
		if plan.SagaID != c.Metadata().ID {
			t.Errorf("SagaID = %s", plan.SagaID)
		}
		if got := revoked(plan.Execute()); !slices.Equal(got, tt.want) {
			t.Errorf("%s: Execute() = %v, want %v", tt.order, got, tt.want)
		}
	}
}

func TestCompensation_Dispatch(t *testing.T) {
	errBoom := errors.New("boom")

	for _, order := range []CompensationOrder{CompensateReverse, CompensateForward, CompensateParallel} {
		t.Run(string(order), func(t *testing.T) {
			plan := NewCompensation(newID())
			plan.Order = order
			plan.Add(command.RevokePolicy{PolicyID: newID()}, command.RevokePolicy{PolicyID: newID()}, command.ArchivePolicy{PolicyID: newID()})

			var calls atomic.Int32
			err := plan.Dispatch(context.Background(), func(_ context.Context, cmd command.Command) error {
				calls.Add(1)
				if cmd.Kind() == command.KindArchivePolicy {
					return errBoom
				}
				return nil
			})
			if calls.Load() != 3 {
				t.Errorf("fn called %d times, want 3", calls.Load())
			}
			if !errors.Is(err, errBoom) {
				t.Errorf("Dispatch() error = %v, want errBoom", err)
			}
		})
	}
}

func TestParseCompensationOrder(t *testing.T) {
	if got, err := ParseCompensationOrder("parallel"); err != nil || got != CompensateParallel {
		t.Errorf("ParseCompensationOrder(parallel) = %q, %v", got, err)
	}
	if _, err := ParseCompensationOrder("sideways"); err == nil {
		t.Error("ParseCompensationOrder(sideways) succeeded")
	}
}

func TestEverySagaKind(t *testing.T) {
	id := newID()
	sagas := map[Kind]Saga{
		KindApproval:    NewApprovalSaga(id, "alice"),
		KindEnforcement: NewEnforcementSaga([]uuid.UUID{id}, domain.All(), "alice"),
		KindExemption:   NewExemptionSaga(id, "alice"),
		KindAudit:       NewAuditSaga([]uuid.UUID{id}, "alice"),
		KindComposite:   NewCompositeSaga("alice", domain.All()),
	}

	for _, kind := range Kinds {
		s, ok := sagas[kind]
		if !ok {
			t.Fatalf("no constructor for %s", kind)
		}
		if s.Kind() != kind {
			t.Errorf("%s: Kind() = %s", kind, s.Kind())
		}
		if !slices.Contains(States, s.CurrentState()) {
			t.Errorf("%s: initial state %s not in States", kind, s.CurrentState())
		}
		if len(s.AvailableTransitions()) == 0 {
			t.Errorf("%s: no transitions offered in the initial state", kind)
		}
		for _, e := range s.Chain().Edges() {
			if !slices.Contains(States, e.From) || !slices.Contains(States, e.To) {
				t.Errorf("%s: chain edge %s -> %s uses an unknown state", kind, e.From, e.To)
			}
		}
		if s.IsComplete() || s.HasFailed() {
			t.Errorf("%s: new saga is already finished", kind)
		}
	}
}

func TestGatesUseKnownStates(t *testing.T) {
	for name, g := range map[string]gate{
		"approval":    approvalGate,
		"enforcement": enforcementGate,
		"exemption":   exemptionGate,
		"audit":       auditGate,
		"composite":   compositeGate,
	} {
		for from, tos := range g {
			if !slices.Contains(States, from) {
				t.Errorf("%s gate: unknown state %s", name, from)
			}
			for _, to := range tos {
				if !slices.Contains(States, to) {
					t.Errorf("%s gate: unknown state %s", name, to)
				}
			}
		}
	}
}
