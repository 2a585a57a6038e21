package domain

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the tag of a ComplianceResult.
type Outcome string

const (
	OutcomeCompliant              Outcome = "compliant"
	OutcomeNonCompliant           Outcome = "non_compliant"
	OutcomeCompliantWithExemption Outcome = "compliant_with_exemption"
	OutcomePartiallyCompliant     Outcome = "partially_compliant"
)

// ComplianceResult is the outcome of an evaluation. The set of
// implementations is closed.
type ComplianceResult interface {
	Outcome() Outcome
	isComplianceResult()
}

// Compliant means every rule passed.
type Compliant struct{}

// NonCompliant carries the violations of the failed rules.
type NonCompliant struct {
	Violations []Violation
}

// CompliantWithExemption means an exemption short-circuited evaluation.
type CompliantWithExemption struct {
	ExemptionID uuid.UUID
}

// PartiallyCompliant summarizes a mixed multi-policy outcome.
type PartiallyCompliant struct {
	Passed int
	Failed int
}

func (Compliant) Outcome() Outcome              { return OutcomeCompliant }
func (NonCompliant) Outcome() Outcome           { return OutcomeNonCompliant }
func (CompliantWithExemption) Outcome() Outcome { return OutcomeCompliantWithExemption }
func (PartiallyCompliant) Outcome() Outcome     { return OutcomePartiallyCompliant }

func (Compliant) isComplianceResult()              {}
func (NonCompliant) isComplianceResult()           {}
func (CompliantWithExemption) isComplianceResult() {}
func (PartiallyCompliant) isComplianceResult()     {}

// IsCompliant reports whether the result counts as passing. Exempted results
// pass; partial results do not.
func IsCompliant(r ComplianceResult) bool {
	switch r.(type) {
	case Compliant, CompliantWithExemption:
		return true
	default:
		return false
	}
}

// ViolationsOf returns the violations carried by r, if any.
func ViolationsOf(r ComplianceResult) []Violation {
	if nc, ok := r.(NonCompliant); ok {
		return nc.Violations
	}
	return nil
}

// Violation records one failed rule.
type Violation struct {
	PolicyID        uuid.UUID `json:"policy_id"`
	RuleID          string    `json:"rule_id"`
	RuleDescription string    `json:"rule_description"`
	Severity        Severity  `json:"severity"`
	Details         string    `json:"details"`
	Remediation     string    `json:"remediation,omitempty"`
}

// RuleResult is the outcome of one rule.
type RuleResult struct {
	RuleID   string   `json:"rule_id"`
	RuleName string   `json:"rule_name"`
	Passed   bool     `json:"passed"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// PolicyEvaluation is the result of evaluating one policy.
type PolicyEvaluation struct {
	ID            uuid.UUID        `json:"id"`
	PolicyID      uuid.UUID        `json:"policy_id"`
	PolicyVersion uint32           `json:"policy_version"`
	RuleResults   []RuleResult     `json:"rule_results"`
	Result        ComplianceResult `json:"-"`
	EvaluatedAt   time.Time        `json:"evaluated_at"`
	ExecutionTime time.Duration    `json:"execution_time"`
}

// ConflictType classifies a policy conflict.
type ConflictType string

const (
	ConflictContradiction ConflictType = "contradiction"
	ConflictOverlap       ConflictType = "overlap"
	ConflictImpossible    ConflictType = "impossible"
	ConflictAmbiguous     ConflictType = "ambiguous"
)

// PolicyConflict records contradicting rules between policies.
type PolicyConflict struct {
	ID          uuid.UUID           `json:"id"`
	PolicyIDs   []uuid.UUID         `json:"policy_ids"`
	RuleIDs     []string            `json:"rule_ids"`
	Type        ConflictType        `json:"type"`
	Description string              `json:"description"`
	DetectedAt  time.Time           `json:"detected_at"`
	Resolution  *ConflictResolution `json:"resolution,omitempty"`
}
