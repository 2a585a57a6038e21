package saga

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/command"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

// RiskLevel is the assessed risk of granting an exemption.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = []string{"low", "medium", "high", "critical"}

func (r RiskLevel) String() string {
	if r >= 0 && int(r) < len(riskNames) {
		return riskNames[r]
	}
	return fmt.Sprintf("risk(%d)", int(r))
}

// ParseRiskLevel parses a case-insensitive risk level name.
func ParseRiskLevel(s string) (RiskLevel, error) {
	if i := slices.Index(riskNames, strings.ToLower(s)); i >= 0 {
		return RiskLevel(i), nil
	}
	return 0, fmt.Errorf("unknown risk level %q", s)
}

// RequiredApprovals returns how many sign-offs an exemption at this risk
// needs: Critical 4, High 3, Medium 2, otherwise 1.
func (r RiskLevel) RequiredApprovals() int {
	switch r {
	case RiskCritical:
		return 4
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	default:
		return 1
	}
}

// BusinessPriority ranks the business need behind an exemption.
type BusinessPriority int

const (
	PriorityLow BusinessPriority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p BusinessPriority) String() string {
	if p >= 0 && int(p) < len(riskNames) {
		return riskNames[p]
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// RiskAssessment is the reviewed risk of an exemption request.
type RiskAssessment struct {
	Level RiskLevel
	Notes string
}

// Justification is the business case for an exemption request.
type Justification struct {
	Text     string
	Priority BusinessPriority
}

// DefaultExemptionDuration is how long a granted exemption lasts when the
// request does not say.
const DefaultExemptionDuration = 30 * 24 * time.Hour

// DefaultExemptionChain returns the default planning chain for exemptions.
func DefaultExemptionChain() *MarkovChain {
	c := NewMarkovChain()
	c.AddTransition(StateExemptionRequested, StateExemptionUnderReview, 0.9)
	c.AddTransition(StateExemptionRequested, StateExemptionDenied, 0.1)
	c.AddTransition(StateExemptionUnderReview, StateExemptionGranted, 0.5)
	c.AddTransition(StateExemptionUnderReview, StateExemptionDenied, 0.4)
	c.AddTransition(StateExemptionUnderReview, StateExemptionRequested, 0.1)
	c.AddTransition(StateExemptionGranted, StateExemptionExpired, 1.0)

	c.SetReward(StateExemptionGranted, 30)
	c.SetReward(StateExemptionDenied, -20)
	c.SetReward(StateExemptionExpired, 0)
	return c
}

// A grant is recorded truth, so it is accepted straight from Requested.
var exemptionGate = gate{
	StateExemptionRequested:   {StateExemptionUnderReview, StateExemptionDenied, StateExemptionGranted},
	StateExemptionUnderReview: {StateExemptionGranted, StateExemptionDenied, StateExemptionRequested},
	StateExemptionGranted:     {StateExemptionExpired, StateExemptionDenied},
}

var exemptionTransitions = map[State][]Transition{
	StateExemptionRequested:   {TransitionReviewExemption, TransitionDenyExemption},
	StateExemptionUnderReview: {TransitionGrantExemption, TransitionDenyExemption, TransitionRequestChanges},
	StateExemptionGranted:     {TransitionExpireExemption},
}

// ExemptionSaga takes one exemption request through review.
type ExemptionSaga struct {
	base
	policyID      uuid.UUID
	requester     string
	risk          *RiskAssessment
	justification *Justification
	approvals     []Approval
	conditions    []domain.ExemptionCondition
	duration      time.Duration
	exemptionID   uuid.UUID
	expiry        *time.Time
}

// NewExemptionSaga starts an exemption workflow in ExemptionRequested.
func NewExemptionSaga(policyID uuid.UUID, requester string, opts ...Option) *ExemptionSaga {
	return &ExemptionSaga{
		base:      newBase(KindExemption, requester, StateExemptionRequested, DefaultExemptionChain(), exemptionGate, opts),
		policyID:  policyID,
		requester: requester,
		duration:  DefaultExemptionDuration,
	}
}

// PolicyID returns the policy the exemption is for.
func (s *ExemptionSaga) PolicyID() uuid.UUID { return s.policyID }

// ExemptionID returns the granted exemption, uuid.Nil before the grant.
func (s *ExemptionSaga) ExemptionID() uuid.UUID { return s.exemptionID }

// Expiry returns the end of the granted validity window.
func (s *ExemptionSaga) Expiry() (time.Time, bool) {
	if s.expiry == nil {
		return time.Time{}, false
	}
	return *s.expiry, true
}

// SetRiskAssessment records the reviewed risk.
func (s *ExemptionSaga) SetRiskAssessment(level RiskLevel, notes string) {
	s.risk = &RiskAssessment{Level: level, Notes: notes}
	s.touch()
}

// SetBusinessJustification records the business case.
func (s *ExemptionSaga) SetBusinessJustification(text string, priority BusinessPriority) {
	s.justification = &Justification{Text: text, Priority: priority}
	s.touch()
}

// SetConditions sets the conditions the grant will carry.
func (s *ExemptionSaga) SetConditions(conditions []domain.ExemptionCondition) {
	s.conditions = slices.Clone(conditions)
	s.touch()
}

// SetDuration sets how long the grant lasts.
func (s *ExemptionSaga) SetDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("exemption duration must be positive, got %s", d)
	}
	s.duration = d
	s.touch()
	return nil
}

// AddApproval records a sign-off.
func (s *ExemptionSaga) AddApproval(approver string, level ApprovalLevel) {
	s.approvals = append(s.approvals, Approval{Approver: approver, Level: level})
	s.touch()
}

// ReadyForApproval reports whether both the risk assessment and the
// business justification are recorded.
func (s *ExemptionSaga) ReadyForApproval() bool {
	return s.risk != nil && s.justification != nil
}

// CheckReady returns a MissingDataError naming the first input that
// ReadyForApproval still waits for.
func (s *ExemptionSaga) CheckReady() error {
	switch {
	case s.risk == nil:
		return &MissingDataError{Field: "risk_assessment"}
	case s.justification == nil:
		return &MissingDataError{Field: "business_justification"}
	}
	return nil
}

// RequiredApprovals returns the sign-offs needed for the assessed risk. An
// unassessed request needs one.
func (s *ExemptionSaga) RequiredApprovals() int {
	if s.risk == nil {
		return RiskLow.RequiredApprovals()
	}
	return s.risk.Level.RequiredApprovals()
}

// HasSufficientApprovals compares the sign-offs against RequiredApprovals.
func (s *ExemptionSaga) HasSufficientApprovals() bool {
	return len(s.approvals) >= s.RequiredApprovals()
}

// AvailableTransitions lists the transitions offered in the current state.
func (s *ExemptionSaga) AvailableTransitions() []Transition {
	return exemptionTransitions[s.state]
}

// ApplyEvent follows the review and the lifecycle of the granted exemption.
func (s *ExemptionSaga) ApplyEvent(e event.Event) error {
	var err error
	switch p := e.Payload.(type) {
	case event.ExemptionReviewStarted:
		if p.PolicyID != s.policyID {
			return nil
		}
		err = s.transition(StateExemptionUnderReview)
	case event.ExemptionDenied:
		if p.PolicyID != s.policyID {
			return nil
		}
		err = s.transition(StateExemptionDenied)
	case event.ExemptionGranted:
		if p.PolicyID != s.policyID {
			return nil
		}
		if err = s.transition(StateExemptionGranted); err == nil {
			until := p.ValidUntil
			s.exemptionID = p.ExemptionID
			s.expiry = &until
		}
	case event.ExemptionRevoked:
		if s.exemptionID == uuid.Nil || p.ExemptionID != s.exemptionID {
			return nil
		}
		err = s.transition(StateExemptionDenied)
	case event.ExemptionExpired:
		if s.exemptionID == uuid.Nil || p.ExemptionID != s.exemptionID {
			return nil
		}
		err = s.transition(StateExemptionExpired)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	s.observe(e)
	return nil
}

// NeedsExpiryCheck reports whether a granted exemption has an expiry to
// watch.
func (s *ExemptionSaga) NeedsExpiryCheck() bool {
	return s.state == StateExemptionGranted && s.expiry != nil
}

// CheckExpiry moves a granted exemption past its validity window to
// ExemptionExpired and reports whether it did.
func (s *ExemptionSaga) CheckExpiry(now time.Time) bool {
	if !s.NeedsExpiryCheck() || !now.After(*s.expiry) {
		return false
	}
	return s.transition(StateExemptionExpired) == nil
}

// Commands files the request once it is ready, and proposes the grant once
// the sign-offs for the assessed risk are in. A grant is never proposed
// before HasSufficientApprovals holds.
func (s *ExemptionSaga) Commands() []command.Command {
	if !s.ReadyForApproval() {
		return nil
	}
	scope := domain.ExemptionScope{Kind: domain.ScopeUser, User: s.requester}

	switch {
	case s.state == StateExemptionRequested:
		return []command.Command{command.RequestExemption{
			Meta:          s.commandMeta(),
			PolicyID:      s.policyID,
			Reason:        s.risk.Notes,
			Justification: s.justification.Text,
			RequestedBy:   s.requester,
			Duration:      s.duration,
			Scope:         scope,
		}}
	case s.state == StateExemptionUnderReview && s.HasSufficientApprovals():
		return []command.Command{command.GrantExemption{
			Meta:           s.commandMeta(),
			PolicyID:       s.policyID,
			Reason:         s.risk.Notes,
			Justification:  s.justification.Text,
			RiskAcceptance: "Risk level: " + s.risk.Level.String(),
			ApprovedBy:     s.approvals[len(s.approvals)-1].Approver,
			Duration:       s.duration,
			Scope:          scope,
			Conditions:     slices.Clone(s.conditions),
		}}
	default:
		return nil
	}
}

// Compensations revokes an exemption the workflow granted.
func (s *ExemptionSaga) Compensations() []command.Command {
	if s.state != StateExemptionGranted {
		return nil
	}
	return []command.Command{command.RevokeExemption{
		Meta:        s.commandMeta(),
		ExemptionID: s.exemptionID,
		RevokedBy:   s.meta.InitiatedBy,
		Reason:      "compensating exemption workflow",
	}}
}

// IsComplete reports Granted, Denied or Expired.
func (s *ExemptionSaga) IsComplete() bool {
	return s.terminal(StateExemptionGranted, StateExemptionDenied, StateExemptionExpired)
}

// HasFailed reports Denied.
func (s *ExemptionSaga) HasFailed() bool {
	return s.state == StateExemptionDenied
}
