package event

import (
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/domain"
)

// FieldChange records one edited attribute in a PolicyUpdated event.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// PolicyCreated opens a policy stream with the full initial definition.
type PolicyCreated struct {
	PolicyID            uuid.UUID               `json:"policy_id"`
	Name                string                  `json:"name"`
	Description         string                  `json:"description,omitempty"`
	Version             uint32                  `json:"version,omitempty"`
	Rules               []domain.Rule           `json:"rules"`
	Target              domain.Target           `json:"target"`
	EnforcementLevel    domain.EnforcementLevel `json:"enforcement_level"`
	EffectiveDate       *time.Time              `json:"effective_date,omitempty"`
	ExpiryDate          *time.Time              `json:"expiry_date,omitempty"`
	ParentPolicyID      *uuid.UUID              `json:"parent_policy_id,omitempty"`
	Tags                []string                `json:"tags,omitempty"`
	ComplianceStandards []string                `json:"compliance_standards,omitempty"`
	DocumentationURL    string                  `json:"documentation_url,omitempty"`
	CreatedBy           string                  `json:"created_by"`
	CreatedAt           time.Time               `json:"created_at"`
}

// PolicyUpdated edits a policy definition. Nil fields are unchanged.
type PolicyUpdated struct {
	PolicyID         uuid.UUID                `json:"policy_id"`
	Version          uint32                   `json:"version"`
	Changes          []FieldChange            `json:"changes,omitempty"`
	Description      *string                  `json:"description,omitempty"`
	Rules            []domain.Rule            `json:"rules,omitempty"`
	Target           *domain.Target           `json:"target,omitempty"`
	EnforcementLevel *domain.EnforcementLevel `json:"enforcement_level,omitempty"`
	EffectiveDate    *time.Time               `json:"effective_date,omitempty"`
	ExpiryDate       *time.Time               `json:"expiry_date,omitempty"`
	UpdatedBy        string                   `json:"updated_by"`
}

// PolicySubmitted moves a Draft policy into review.
type PolicySubmitted struct {
	PolicyID    uuid.UUID `json:"policy_id"`
	SubmittedBy string    `json:"submitted_by"`
}

// PolicyReviewRejected ends a review without approval. ReturnToDraft sends
// the policy back for editing; otherwise the review is closed as rejected.
type PolicyReviewRejected struct {
	PolicyID      uuid.UUID `json:"policy_id"`
	RejectedBy    string    `json:"rejected_by"`
	Reason        string    `json:"reason"`
	ReturnToDraft bool      `json:"return_to_draft"`
}

// PolicyApproved records review approval.
type PolicyApproved struct {
	PolicyID   uuid.UUID `json:"policy_id"`
	ApprovedBy string    `json:"approved_by"`
	Comments   string    `json:"comments,omitempty"`
}

// PolicyActivated makes an Approved or Suspended policy Active.
type PolicyActivated struct {
	PolicyID       uuid.UUID  `json:"policy_id"`
	ActivatedBy    string     `json:"activated_by"`
	EffectiveFrom  *time.Time `json:"effective_from,omitempty"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
}

// PolicySuspended pauses an Active policy.
type PolicySuspended struct {
	PolicyID       uuid.UUID  `json:"policy_id"`
	SuspendedBy    string     `json:"suspended_by"`
	Reason         string     `json:"reason"`
	ExpectedResume *time.Time `json:"expected_resume,omitempty"`
}

// PolicyRevoked permanently withdraws a policy.
type PolicyRevoked struct {
	PolicyID  uuid.UUID `json:"policy_id"`
	RevokedBy string    `json:"revoked_by"`
	Reason    string    `json:"reason"`
	Immediate bool      `json:"immediate"`
}

// PolicyArchived retires a revoked policy.
type PolicyArchived struct {
	PolicyID      uuid.UUID `json:"policy_id"`
	ArchivedBy    string    `json:"archived_by"`
	RetentionDays int       `json:"retention_days"`
}

// PolicyEvaluated records the outcome of one evaluation run.
type PolicyEvaluated struct {
	PolicyID        uuid.UUID          `json:"policy_id"`
	EvaluationID    uuid.UUID          `json:"evaluation_id"`
	ContextHash     string             `json:"context_hash,omitempty"`
	Outcome         domain.Outcome     `json:"outcome"`
	ExemptionID     *uuid.UUID         `json:"exemption_id,omitempty"`
	Violations      []domain.Violation `json:"violations,omitempty"`
	ExecutionMillis int64              `json:"execution_ms"`
	AuditID         *uuid.UUID         `json:"audit_id,omitempty"`
}

// Result rebuilds the ComplianceResult carried by the event.
func (p PolicyEvaluated) Result() domain.ComplianceResult {
	switch p.Outcome {
	case domain.OutcomeCompliant:
		return domain.Compliant{}
	case domain.OutcomeCompliantWithExemption:
		if p.ExemptionID != nil {
			return domain.CompliantWithExemption{ExemptionID: *p.ExemptionID}
		}
		return domain.CompliantWithExemption{}
	case domain.OutcomePartiallyCompliant:
		return domain.PartiallyCompliant{Failed: len(p.Violations)}
	default:
		return domain.NonCompliant{Violations: p.Violations}
	}
}

// PolicyViolationDetected records failed rules found during evaluation.
type PolicyViolationDetected struct {
	PolicyID          uuid.UUID                `json:"policy_id"`
	EvaluationID      uuid.UUID                `json:"evaluation_id"`
	Violations        []domain.Violation       `json:"violations"`
	Severity          domain.Severity          `json:"severity"`
	EnforcementAction domain.EnforcementAction `json:"enforcement_action,omitempty"`
	AuditID           *uuid.UUID               `json:"audit_id,omitempty"`
}

// PolicyCompliancePassed records a fully compliant evaluation.
type PolicyCompliancePassed struct {
	PolicyID       uuid.UUID  `json:"policy_id"`
	EvaluationID   uuid.UUID  `json:"evaluation_id"`
	RulesEvaluated int        `json:"rules_evaluated"`
	AuditID        *uuid.UUID `json:"audit_id,omitempty"`
}

// PolicyEnforced records the enforcement decision for a set of policies.
type PolicyEnforced struct {
	EnforcementID uuid.UUID                `json:"enforcement_id"`
	PolicyIDs     []uuid.UUID              `json:"policy_ids"`
	Action        domain.EnforcementAction `json:"action"`
	Reason        string                   `json:"reason,omitempty"`
}

// ExemptionReviewStarted moves an exemption request into review.
type ExemptionReviewStarted struct {
	RequestID uuid.UUID `json:"request_id"`
	PolicyID  uuid.UUID `json:"policy_id"`
	Reviewer  string    `json:"reviewer"`
}

// ExemptionDenied closes an exemption request without granting it.
type ExemptionDenied struct {
	RequestID uuid.UUID `json:"request_id"`
	PolicyID  uuid.UUID `json:"policy_id"`
	DeniedBy  string    `json:"denied_by"`
	Reason    string    `json:"reason"`
}

// ExemptionGranted opens an exemption stream.
type ExemptionGranted struct {
	ExemptionID    uuid.UUID                   `json:"exemption_id"`
	PolicyID       uuid.UUID                   `json:"policy_id"`
	RequestID      *uuid.UUID                  `json:"request_id,omitempty"`
	GrantedBy      string                      `json:"granted_by"`
	Reason         string                      `json:"reason"`
	Justification  string                      `json:"justification,omitempty"`
	RiskAcceptance string                      `json:"risk_acceptance,omitempty"`
	ValidFrom      time.Time                   `json:"valid_from"`
	ValidUntil     time.Time                   `json:"valid_until"`
	Scope          domain.ExemptionScope       `json:"scope"`
	Conditions     []domain.ExemptionCondition `json:"conditions,omitempty"`
}

// ExemptionRevoked withdraws a granted exemption.
type ExemptionRevoked struct {
	ExemptionID uuid.UUID `json:"exemption_id"`
	PolicyID    uuid.UUID `json:"policy_id"`
	RevokedBy   string    `json:"revoked_by"`
	Reason      string    `json:"reason"`
}

// ExemptionExpired records that an exemption's window has passed.
type ExemptionExpired struct {
	ExemptionID uuid.UUID `json:"exemption_id"`
	PolicyID    uuid.UUID `json:"policy_id"`
	ExpiredAt   time.Time `json:"expired_at"`
}

// PolicySetCreated opens a policy set stream.
type PolicySetCreated struct {
	SetID              uuid.UUID                 `json:"set_id"`
	Name               string                    `json:"name"`
	Description        string                    `json:"description,omitempty"`
	Policies           []uuid.UUID               `json:"policies,omitempty"`
	Composition        domain.CompositionRule    `json:"composition"`
	ConflictResolution domain.ConflictResolution `json:"conflict_resolution"`
	CreatedBy          string                    `json:"created_by"`
	CreatedAt          time.Time                 `json:"created_at"`
}

// PolicyAddedToSet adds a member policy.
type PolicyAddedToSet struct {
	SetID    uuid.UUID `json:"set_id"`
	PolicyID uuid.UUID `json:"policy_id"`
	AddedBy  string    `json:"added_by"`
}

// PolicyRemovedFromSet removes a member policy.
type PolicyRemovedFromSet struct {
	SetID     uuid.UUID `json:"set_id"`
	PolicyID  uuid.UUID `json:"policy_id"`
	RemovedBy string    `json:"removed_by"`
}

// PolicySetActivated marks a set Active.
type PolicySetActivated struct {
	SetID       uuid.UUID `json:"set_id"`
	ActivatedBy string    `json:"activated_by"`
}

// PolicyConflictDetected records a conflict found between member policies.
type PolicyConflictDetected struct {
	SetID    uuid.UUID             `json:"set_id"`
	Conflict domain.PolicyConflict `json:"conflict"`
}

func (PolicyCreated) EventType() Type           { return TypePolicyCreated }
func (PolicyUpdated) EventType() Type           { return TypePolicyUpdated }
func (PolicySubmitted) EventType() Type         { return TypePolicySubmitted }
func (PolicyReviewRejected) EventType() Type    { return TypePolicyReviewRejected }
func (PolicyApproved) EventType() Type          { return TypePolicyApproved }
func (PolicyActivated) EventType() Type         { return TypePolicyActivated }
func (PolicySuspended) EventType() Type         { return TypePolicySuspended }
func (PolicyRevoked) EventType() Type           { return TypePolicyRevoked }
func (PolicyArchived) EventType() Type          { return TypePolicyArchived }
func (PolicyEvaluated) EventType() Type         { return TypePolicyEvaluated }
func (PolicyViolationDetected) EventType() Type { return TypePolicyViolationDetected }
func (PolicyCompliancePassed) EventType() Type  { return TypePolicyCompliancePassed }
func (PolicyEnforced) EventType() Type          { return TypePolicyEnforced }
func (ExemptionReviewStarted) EventType() Type  { return TypeExemptionReviewStarted }
func (ExemptionDenied) EventType() Type         { return TypeExemptionDenied }
func (ExemptionGranted) EventType() Type        { return TypeExemptionGranted }
func (ExemptionRevoked) EventType() Type        { return TypeExemptionRevoked }
func (ExemptionExpired) EventType() Type        { return TypeExemptionExpired }
func (PolicySetCreated) EventType() Type        { return TypePolicySetCreated }
func (PolicyAddedToSet) EventType() Type        { return TypePolicyAddedToSet }
func (PolicyRemovedFromSet) EventType() Type    { return TypePolicyRemovedFromSet }
func (PolicySetActivated) EventType() Type      { return TypePolicySetActivated }
func (PolicyConflictDetected) EventType() Type  { return TypePolicyConflictDetected }

func (PolicyCreated) Aggregate() AggregateType           { return AggregatePolicy }
func (PolicyUpdated) Aggregate() AggregateType           { return AggregatePolicy }
func (PolicySubmitted) Aggregate() AggregateType         { return AggregatePolicy }
func (PolicyReviewRejected) Aggregate() AggregateType    { return AggregatePolicy }
func (PolicyApproved) Aggregate() AggregateType          { return AggregatePolicy }
func (PolicyActivated) Aggregate() AggregateType         { return AggregatePolicy }
func (PolicySuspended) Aggregate() AggregateType         { return AggregatePolicy }
func (PolicyRevoked) Aggregate() AggregateType           { return AggregatePolicy }
func (PolicyArchived) Aggregate() AggregateType          { return AggregatePolicy }
func (PolicyEvaluated) Aggregate() AggregateType         { return AggregatePolicy }
func (PolicyViolationDetected) Aggregate() AggregateType { return AggregatePolicy }
func (PolicyCompliancePassed) Aggregate() AggregateType  { return AggregatePolicy }
func (PolicyEnforced) Aggregate() AggregateType          { return AggregateEnforcement }
func (ExemptionReviewStarted) Aggregate() AggregateType  { return AggregateExemptionRequest }
func (ExemptionDenied) Aggregate() AggregateType         { return AggregateExemptionRequest }
func (ExemptionGranted) Aggregate() AggregateType        { return AggregateExemption }
func (ExemptionRevoked) Aggregate() AggregateType        { return AggregateExemption }
func (ExemptionExpired) Aggregate() AggregateType        { return AggregateExemption }
func (PolicySetCreated) Aggregate() AggregateType        { return AggregatePolicySet }
func (PolicyAddedToSet) Aggregate() AggregateType        { return AggregatePolicySet }
func (PolicyRemovedFromSet) Aggregate() AggregateType    { return AggregatePolicySet }
func (PolicySetActivated) Aggregate() AggregateType      { return AggregatePolicySet }
func (PolicyConflictDetected) Aggregate() AggregateType  { return AggregatePolicySet }
