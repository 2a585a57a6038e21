package saga

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/command"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

// DefaultEnforcementChain returns the default planning chain for
// enforcement.
func DefaultEnforcementChain() *MarkovChain {
	c := NewMarkovChain()
	c.AddTransition(StateInitiated, StateEvaluating, 1.0)
	c.AddTransition(StateEvaluating, StateEnforcing, 0.8)
	c.AddTransition(StateEvaluating, StateFailed, 0.2)
	c.AddTransition(StateEnforcing, StateAllowed, 0.6)
	c.AddTransition(StateEnforcing, StateBlocked, 0.3)
	c.AddTransition(StateEnforcing, StateRemediation, 0.1)

	c.SetReward(StateAllowed, 50)
	c.SetReward(StateBlocked, -10)
	c.SetReward(StateRemediation, 20)
	c.SetReward(StateFailed, -100)
	return c
}

var enforcementGate = gate{
	StateInitiated:  {StateEvaluating, StateFailed},
	StateEvaluating: {StateEnforcing, StateFailed},
	StateEnforcing:  {StateAllowed, StateBlocked, StateRemediation},
	StateBlocked:    {StateRemediation},
}

var enforcementTransitions = map[State][]Transition{
	StateInitiated:  {TransitionStart},
	StateEvaluating: {TransitionEvaluate},
	StateEnforcing:  {TransitionAllow, TransitionBlock, TransitionRemediate},
	StateBlocked:    {TransitionRemediate},
}

// EnforcementSaga gathers the results of several policies and enforces one
// decision for them.
type EnforcementSaga struct {
	base
	policyIDs   []uuid.UUID
	composition domain.CompositionRule
	results     map[uuid.UUID]domain.ComplianceResult
	decision    domain.EnforcementAction
	deadline    time.Time
}

// NewEnforcementSaga starts an enforcement workflow over policyIDs.
func NewEnforcementSaga(policyIDs []uuid.UUID, composition domain.CompositionRule, initiatedBy string, opts ...Option) *EnforcementSaga {
	return &EnforcementSaga{
		base:        newBase(KindEnforcement, initiatedBy, StateInitiated, DefaultEnforcementChain(), enforcementGate, opts),
		policyIDs:   slices.Clone(policyIDs),
		composition: composition,
		results:     make(map[uuid.UUID]domain.ComplianceResult),
	}
}

// SetDeadline bounds how long evaluation may take. Zero clears it.
func (s *EnforcementSaga) SetDeadline(deadline time.Time) {
	s.deadline = deadline
	s.touch()
}

// PolicyIDs returns the policies being enforced.
func (s *EnforcementSaga) PolicyIDs() []uuid.UUID { return slices.Clone(s.policyIDs) }

// Decision returns the enforcement action, empty until every policy has a
// result.
func (s *EnforcementSaga) Decision() domain.EnforcementAction { return s.decision }

// Result returns the recorded result of one policy.
func (s *EnforcementSaga) Result(policyID uuid.UUID) (domain.ComplianceResult, bool) {
	r, ok := s.results[policyID]
	return r, ok
}

// AddResult records the result of one policy. The first result per policy
// wins. Once every policy has a result the decision is made and the saga
// moves to Enforcing.
func (s *EnforcementSaga) AddResult(policyID uuid.UUID, result domain.ComplianceResult) error {
	if !slices.Contains(s.policyIDs, policyID) {
		return nil
	}
	if _, seen := s.results[policyID]; seen {
		return nil
	}
	if s.state == StateInitiated {
		if err := s.transition(StateEvaluating); err != nil {
			return err
		}
	}
	if s.state != StateEvaluating {
		return &InvalidTransitionError{Saga: s.kind, From: s.state, To: StateEvaluating}
	}

	s.results[policyID] = result
	s.touch()
	if len(s.results) < len(s.policyIDs) {
		return nil
	}
	s.decision = s.decide()
	return s.transition(StateEnforcing)
}

// decide applies the composition rule. A satisfied Majority allows with a
// warning; any other satisfied rule allows.
func (s *EnforcementSaga) decide() domain.EnforcementAction {
	compliant := 0
	for _, r := range s.results {
		if domain.IsCompliant(r) {
			compliant++
		}
	}
	switch {
	case !s.composition.Satisfied(compliant, len(s.results)):
		return domain.ActionBlock
	case s.composition.Kind == domain.ComposeMajority:
		return domain.ActionAllowWithWarning
	default:
		return domain.ActionAllow
	}
}

// RemediationSteps lists the remediation hints of every violation, in
// policy order.
func (s *EnforcementSaga) RemediationSteps() []string {
	var steps []string
	for _, id := range s.policyIDs {
		for _, v := range domain.ViolationsOf(s.results[id]) {
			if v.Remediation != "" {
				steps = append(steps, v.Remediation)
			}
		}
	}
	return steps
}

// HasRemediationPath reports whether a blocked decision can be remediated.
func (s *EnforcementSaga) HasRemediationPath() bool {
	return s.state == StateBlocked && len(s.RemediationSteps()) > 0
}

// AvailableTransitions lists the transitions offered in the current state.
func (s *EnforcementSaga) AvailableTransitions() []Transition {
	return enforcementTransitions[s.state]
}

// ApplyEvent records evaluation results and completes on enforcement.
func (s *EnforcementSaga) ApplyEvent(e event.Event) error {
	var err error
	switch p := e.Payload.(type) {
	case event.PolicyEvaluated:
		err = s.AddResult(p.PolicyID, p.Result())
	case event.PolicyViolationDetected:
		err = s.AddResult(p.PolicyID, domain.NonCompliant{Violations: p.Violations})
	case event.PolicyCompliancePassed:
		err = s.AddResult(p.PolicyID, domain.Compliant{})
	case event.PolicyEnforced:
		if !s.covers(p.PolicyIDs) {
			return nil
		}
		err = s.transition(outcomeOf(p.Action))
	default:
		return nil
	}
	if err != nil {
		return err
	}
	s.observe(e)
	return nil
}

func (s *EnforcementSaga) covers(ids []uuid.UUID) bool {
	for _, id := range ids {
		if slices.Contains(s.policyIDs, id) {
			return true
		}
	}
	return false
}

func outcomeOf(action domain.EnforcementAction) State {
	switch action {
	case domain.ActionAllow, domain.ActionAllowWithWarning:
		return StateAllowed
	case domain.ActionRedirect:
		return StateRemediation
	default:
		return StateBlocked
	}
}

// CheckDeadline fails the saga when evaluation outlives its deadline.
func (s *EnforcementSaga) CheckDeadline(now time.Time) error {
	if s.deadline.IsZero() || !now.After(s.deadline) {
		return nil
	}
	if s.state != StateInitiated && s.state != StateEvaluating {
		return nil
	}
	if err := s.transition(StateFailed); err != nil {
		return err
	}
	return fmt.Errorf("%w: %d of %d policies evaluated by %s",
		ErrTimeout, len(s.results), len(s.policyIDs), s.deadline.Format(time.RFC3339))
}

// Commands requests evaluation of the policies without a result, then the
// enforcement of the decision.
func (s *EnforcementSaga) Commands() []command.Command {
	var cmds []command.Command
	switch s.state {
	case StateInitiated, StateEvaluating:
		for _, id := range s.policyIDs {
			if _, ok := s.results[id]; ok {
				continue
			}
			cmds = append(cmds, command.EvaluatePolicy{
				Meta:     s.commandMeta(),
				PolicyID: id,
				Context:  domain.NewContext(nil, s.meta.InitiatedBy, s.clock()),
			})
		}
	case StateEnforcing:
		cmds = append(cmds, command.EnforcePolicy{
			Meta:      s.commandMeta(),
			PolicyIDs: slices.Clone(s.policyIDs),
			Action:    s.decision,
			Reason:    fmt.Sprintf("composition %s over %d policies", s.composition, len(s.policyIDs)),
		})
	}
	return cmds
}

// IsComplete reports Allowed, Blocked, Remediation or Completed.
func (s *EnforcementSaga) IsComplete() bool {
	return s.terminal(StateAllowed, StateBlocked, StateRemediation, StateCompleted)
}

// HasFailed reports Failed.
func (s *EnforcementSaga) HasFailed() bool {
	return s.state == StateFailed
}
