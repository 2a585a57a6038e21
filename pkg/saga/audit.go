package saga

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/command"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

// FindingType classifies an audit finding.
type FindingType string

const (
	FindingViolation   FindingType = "violation"
	FindingWeakness    FindingType = "weakness"
	FindingObservation FindingType = "observation"
	FindingStrength    FindingType = "strength"
)

// Finding is one audit observation about a policy.
type Finding struct {
	PolicyID            uuid.UUID
	Type                FindingType
	Severity            domain.Severity
	Description         string
	Evidence            []string
	RemediationRequired bool
}

// ComplianceStatus is the overall verdict of an audit.
type ComplianceStatus string

const (
	FullyCompliant        ComplianceStatus = "fully_compliant"
	PartiallyCompliant    ComplianceStatus = "partially_compliant"
	NonCompliant          ComplianceStatus = "non_compliant"
	CriticalNonCompliance ComplianceStatus = "critical_non_compliance"
)

// SeverityPenalty is the score deduction for one finding.
func SeverityPenalty(s domain.Severity) float64 {
	switch s {
	case domain.SeverityCritical:
		return 10
	case domain.SeverityHigh:
		return 5
	case domain.SeverityMedium:
		return 2
	case domain.SeverityLow:
		return 1
	default:
		return 0.5
	}
}

// SuspensionPeriod is how long a critical finding suspends its policy.
const SuspensionPeriod = 7 * 24 * time.Hour

// Context fields set on audit evaluations.
const (
	FieldAuditMode = "audit_mode"
	FieldAuditID   = "audit_id"
)

// DefaultAuditChain returns the default planning chain for audits.
func DefaultAuditChain() *MarkovChain {
	c := NewMarkovChain()
	c.AddTransition(StateAuditScheduled, StateAuditInProgress, 0.95)
	c.AddTransition(StateAuditScheduled, StateCancelled, 0.05)
	c.AddTransition(StateAuditInProgress, StateAuditComplete, 0.8)
	c.AddTransition(StateAuditInProgress, StateFailed, 0.2)
	c.AddTransition(StateAuditComplete, StateComplianceVerified, 0.6)
	c.AddTransition(StateAuditComplete, StateNonCompliant, 0.4)

	c.SetReward(StateComplianceVerified, 100)
	c.SetReward(StateNonCompliant, -50)
	c.SetReward(StateFailed, -100)
	return c
}

var auditGate = gate{
	StateAuditScheduled:  {StateAuditInProgress, StateCancelled},
	StateAuditInProgress: {StateAuditComplete, StateFailed},
	StateAuditComplete:   {StateComplianceVerified, StateNonCompliant},
}

var auditTransitions = map[State][]Transition{
	StateAuditScheduled:  {TransitionStartAudit, TransitionCancel},
	StateAuditInProgress: {TransitionCompleteAudit},
	StateAuditComplete:   {TransitionVerifyCompliance, TransitionReportViolation},
	StateNonCompliant:    {TransitionRemediate},
}

// AuditSaga scores the compliance of a group of policies.
type AuditSaga struct {
	base
	policyIDs []uuid.UUID
	results   map[uuid.UUID]domain.ComplianceResult
	findings  []Finding
	status    ComplianceStatus
	deadline  time.Time
}

// NewAuditSaga schedules an audit of policyIDs.
func NewAuditSaga(policyIDs []uuid.UUID, initiatedBy string, opts ...Option) *AuditSaga {
	return &AuditSaga{
		base:      newBase(KindAudit, initiatedBy, StateAuditScheduled, DefaultAuditChain(), auditGate, opts),
		policyIDs: slices.Clone(policyIDs),
		results:   make(map[uuid.UUID]domain.ComplianceResult),
	}
}

// SetDeadline bounds how long the audit may run. Zero clears it.
func (s *AuditSaga) SetDeadline(deadline time.Time) {
	s.deadline = deadline
	s.touch()
}

// ID returns the audit id carried by audit evaluations.
func (s *AuditSaga) ID() uuid.UUID { return s.meta.ID }

// Status returns the overall verdict, empty until every policy is audited.
func (s *AuditSaga) Status() ComplianceStatus { return s.status }

// Findings returns the recorded findings.
func (s *AuditSaga) Findings() []Finding { return slices.Clone(s.findings) }

// Cancel stops a scheduled audit.
func (s *AuditSaga) Cancel() error {
	return s.transition(StateCancelled)
}

// AddResult records the audit result of one policy and derives findings
// from its violations. The first result per policy wins.
func (s *AuditSaga) AddResult(policyID uuid.UUID, result domain.ComplianceResult) error {
	if !slices.Contains(s.policyIDs, policyID) {
		return nil
	}
	if _, seen := s.results[policyID]; seen {
		return nil
	}
	if s.state == StateAuditScheduled {
		if err := s.transition(StateAuditInProgress); err != nil {
			return err
		}
	}
	if s.state != StateAuditInProgress {
		return &InvalidTransitionError{Saga: s.kind, From: s.state, To: StateAuditInProgress}
	}

	s.results[policyID] = result
	for _, v := range domain.ViolationsOf(result) {
		findingType := FindingWeakness
		if v.Severity >= domain.SeverityHigh {
			findingType = FindingViolation
		}
		s.findings = append(s.findings, Finding{
			PolicyID:            policyID,
			Type:                findingType,
			Severity:            v.Severity,
			Description:         v.Details,
			Evidence:            []string{v.RuleDescription},
			RemediationRequired: v.Severity >= domain.SeverityMedium,
		})
	}
	s.touch()

	if len(s.results) < len(s.policyIDs) {
		return nil
	}
	return s.conclude()
}

func (s *AuditSaga) conclude() error {
	if err := s.transition(StateAuditComplete); err != nil {
		return err
	}

	total := len(s.results)
	compliant := s.compliantCount()
	critical := slices.ContainsFunc(s.findings, func(f Finding) bool {
		return f.Severity == domain.SeverityCritical
	})

	switch {
	case critical:
		s.status = CriticalNonCompliance
	case compliant == total:
		s.status = FullyCompliant
	case compliant*2 > total:
		s.status = PartiallyCompliant
	default:
		s.status = NonCompliant
	}

	if s.status == FullyCompliant {
		return s.transition(StateComplianceVerified)
	}
	return s.transition(StateNonCompliant)
}

func (s *AuditSaga) compliantCount() int {
	n := 0
	for _, r := range s.results {
		if domain.IsCompliant(r) {
			n++
		}
	}
	return n
}

// ComplianceScore is 100 times the compliant share minus the severity
// penalty of every finding, floored at 0. It is 0 before any result.
func (s *AuditSaga) ComplianceScore() float64 {
	if len(s.results) == 0 {
		return 0
	}
	penalty := 0.0
	for _, f := range s.findings {
		penalty += SeverityPenalty(f.Severity)
	}
	score := float64(s.compliantCount())/float64(len(s.results))*100 - penalty
	return math.Max(score, 0)
}

// PriorityRemediations lists the descriptions of findings that need
// remediation at High severity or above.
func (s *AuditSaga) PriorityRemediations() []string {
	var out []string
	for _, f := range s.findings {
		if f.RemediationRequired && f.Severity >= domain.SeverityHigh {
			out = append(out, f.Description)
		}
	}
	return out
}

// AvailableTransitions lists the transitions offered in the current state.
func (s *AuditSaga) AvailableTransitions() []Transition {
	return auditTransitions[s.state]
}

// ApplyEvent records evaluation results. Evaluations tagged with another
// audit id are ignored.
func (s *AuditSaga) ApplyEvent(e event.Event) error {
	var err error
	switch p := e.Payload.(type) {
	case event.PolicyEvaluated:
		if !s.ownAudit(p.AuditID) {
			return nil
		}
		err = s.AddResult(p.PolicyID, p.Result())
	case event.PolicyViolationDetected:
		if !s.ownAudit(p.AuditID) {
			return nil
		}
		err = s.AddResult(p.PolicyID, domain.NonCompliant{Violations: p.Violations})
	case event.PolicyCompliancePassed:
		if !s.ownAudit(p.AuditID) {
			return nil
		}
		err = s.AddResult(p.PolicyID, domain.Compliant{})
	default:
		return nil
	}
	if err != nil {
		return err
	}
	s.observe(e)
	return nil
}

func (s *AuditSaga) ownAudit(auditID *uuid.UUID) bool {
	return auditID == nil || *auditID == s.meta.ID
}

// CheckDeadline fails an audit still in progress after its deadline.
func (s *AuditSaga) CheckDeadline(now time.Time) error {
	if s.deadline.IsZero() || !now.After(s.deadline) || s.state != StateAuditInProgress {
		return nil
	}
	if err := s.transition(StateFailed); err != nil {
		return err
	}
	return fmt.Errorf("%w: %d of %d policies audited", ErrTimeout, len(s.results), len(s.policyIDs))
}

// Commands requests audit-mode evaluations of the policies without a
// result, and suspension of every policy with a critical finding.
func (s *AuditSaga) Commands() []command.Command {
	var cmds []command.Command
	switch s.state {
	case StateAuditScheduled, StateAuditInProgress:
		auditID := s.meta.ID
		fields := map[string]ast.Value{
			FieldAuditMode: ast.Bool(true),
			FieldAuditID:   ast.String(auditID.String()),
		}
		for _, id := range s.policyIDs {
			if _, ok := s.results[id]; ok {
				continue
			}
			cmds = append(cmds, command.EvaluatePolicy{
				Meta:      s.commandMeta(),
				PolicyID:  id,
				Context:   domain.NewContext(fields, s.meta.InitiatedBy, s.clock()),
				AuditMode: true,
				AuditID:   &auditID,
			})
		}
	case StateNonCompliant:
		resume := s.clock().Add(SuspensionPeriod)
		var suspended []uuid.UUID
		for _, f := range s.findings {
			if f.Severity != domain.SeverityCritical || !f.RemediationRequired {
				continue
			}
			if slices.Contains(suspended, f.PolicyID) {
				continue
			}
			suspended = append(suspended, f.PolicyID)
			cmds = append(cmds, command.SuspendPolicy{
				Meta:           s.commandMeta(),
				PolicyID:       f.PolicyID,
				SuspendedBy:    s.meta.InitiatedBy,
				Reason:         "Critical compliance violation: " + f.Description,
				ExpectedResume: &resume,
			})
		}
	}
	return cmds
}

// IsComplete reports ComplianceVerified, NonCompliant or Cancelled.
func (s *AuditSaga) IsComplete() bool {
	return s.terminal(StateComplianceVerified, StateNonCompliant, StateCancelled)
}

// HasFailed reports Failed.
func (s *AuditSaga) HasFailed() bool {
	return s.state == StateFailed
}
