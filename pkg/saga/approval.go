package saga

import (
	"fmt"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/command"
	"mercator-hq/tribune/pkg/policy/event"
)

// ApprovalLevel is the organizational level of an approver.
type ApprovalLevel string

const (
	LevelManager    ApprovalLevel = "manager"
	LevelDirector   ApprovalLevel = "director"
	LevelSecurity   ApprovalLevel = "security"
	LevelCompliance ApprovalLevel = "compliance"
)

// ParseApprovalLevel parses an approval level name.
func ParseApprovalLevel(s string) (ApprovalLevel, error) {
	switch l := ApprovalLevel(s); l {
	case LevelManager, LevelDirector, LevelSecurity, LevelCompliance:
		return l, nil
	default:
		return "", fmt.Errorf("unknown approval level %q", s)
	}
}

// Approval records one sign-off.
type Approval struct {
	Approver string
	Level    ApprovalLevel
}

// DefaultApprovalChain returns the default planning chain for approvals.
func DefaultApprovalChain() *MarkovChain {
	c := NewMarkovChain()
	c.AddTransition(StateDraft, StateUnderReview, 1.0)
	c.AddTransition(StateUnderReview, StateApproved, 0.6)
	c.AddTransition(StateUnderReview, StateRejected, 0.3)
	c.AddTransition(StateUnderReview, StateDraft, 0.1)
	c.AddTransition(StateApproved, StateActive, 0.95)
	c.AddTransition(StateApproved, StateFailed, 0.05)

	c.SetReward(StateActive, 100)
	c.SetReward(StateApproved, 50)
	c.SetReward(StateRejected, -30)
	c.SetReward(StateFailed, -50)
	return c
}

var approvalGate = gate{
	StateDraft:       {StateUnderReview},
	StateUnderReview: {StateApproved, StateRejected, StateDraft},
	StateApproved:    {StateActive, StateFailed},
	StateRejected:    {StateUnderReview},
}

var approvalTransitions = map[State][]Transition{
	StateDraft:       {TransitionSubmitForReview},
	StateUnderReview: {TransitionApprove, TransitionReject, TransitionRequestChanges},
	StateApproved:    {TransitionActivate},
	StateRejected:    {TransitionRetry},
}

// ApprovalSaga drives one policy from Draft to Active.
type ApprovalSaga struct {
	base
	policyID        uuid.UUID
	approvals       []Approval
	rejectionReason string
}

// NewApprovalSaga starts an approval workflow for policyID in Draft.
func NewApprovalSaga(policyID uuid.UUID, initiatedBy string, opts ...Option) *ApprovalSaga {
	return &ApprovalSaga{
		base:     newBase(KindApproval, initiatedBy, StateDraft, DefaultApprovalChain(), approvalGate, opts),
		policyID: policyID,
	}
}

// PolicyID returns the policy under approval.
func (s *ApprovalSaga) PolicyID() uuid.UUID { return s.policyID }

// AddApproval records a sign-off.
func (s *ApprovalSaga) AddApproval(approver string, level ApprovalLevel) {
	s.approvals = append(s.approvals, Approval{Approver: approver, Level: level})
	s.touch()
}

// Approvals returns the recorded sign-offs.
func (s *ApprovalSaga) Approvals() []Approval {
	out := make([]Approval, len(s.approvals))
	copy(out, s.approvals)
	return out
}

// HasSufficientApprovals requires both a Manager and a Director sign-off.
func (s *ApprovalSaga) HasSufficientApprovals() bool {
	var manager, director bool
	for _, a := range s.approvals {
		switch a.Level {
		case LevelManager:
			manager = true
		case LevelDirector:
			director = true
		}
	}
	return manager && director
}

// RejectionReason returns the reason of the last rejection, if any.
func (s *ApprovalSaga) RejectionReason() string { return s.rejectionReason }

// AvailableTransitions lists the transitions offered in the current state.
func (s *ApprovalSaga) AvailableTransitions() []Transition {
	return approvalTransitions[s.state]
}

// ApplyEvent advances the workflow on lifecycle events of its policy.
func (s *ApprovalSaga) ApplyEvent(e event.Event) error {
	if e.AggregateID != s.policyID {
		return nil
	}

	var err error
	switch p := e.Payload.(type) {
	case event.PolicySubmitted:
		err = s.transition(StateUnderReview)
	case event.PolicyApproved:
		err = s.transition(StateApproved)
	case event.PolicyReviewRejected:
		if p.ReturnToDraft {
			err = s.transition(StateDraft)
		} else {
			err = s.transition(StateRejected)
		}
		if err == nil {
			s.rejectionReason = p.Reason
		}
	case event.PolicyActivated:
		err = s.transition(StateActive)
	case event.PolicyRevoked:
		// Revoked before activation ends the workflow unsuccessfully.
		if s.state == StateApproved {
			err = s.transition(StateFailed)
		}
	default:
		return nil
	}
	if err != nil {
		return err
	}
	s.observe(e)
	return nil
}

// Commands proposes approval once sign-offs are sufficient, and activation
// once approved.
func (s *ApprovalSaga) Commands() []command.Command {
	switch {
	case s.state == StateUnderReview && s.HasSufficientApprovals():
		return []command.Command{command.ApprovePolicy{
			Meta:       s.commandMeta(),
			PolicyID:   s.policyID,
			ApprovedBy: s.meta.InitiatedBy,
			Comments:   "Approved by required stakeholders",
		}}
	case s.state == StateApproved:
		return []command.Command{command.ActivatePolicy{
			Meta:        s.commandMeta(),
			PolicyID:    s.policyID,
			ActivatedBy: s.meta.InitiatedBy,
		}}
	default:
		return nil
	}
}

// Compensations revokes a policy the workflow activated.
func (s *ApprovalSaga) Compensations() []command.Command {
	if s.state != StateActive {
		return nil
	}
	return []command.Command{command.RevokePolicy{
		Meta:     s.commandMeta(),
		PolicyID: s.policyID,
		Reason:   "compensating approval workflow",
	}}
}

// IsComplete reports Active or Rejected.
func (s *ApprovalSaga) IsComplete() bool {
	return s.terminal(StateActive, StateRejected)
}

// HasFailed reports Failed or Rejected.
func (s *ApprovalSaga) HasFailed() bool {
	return s.terminal(StateFailed, StateRejected)
}
