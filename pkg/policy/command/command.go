package command

import (
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/domain"
)

// Kind identifies a command type.
type Kind string

const (
	KindCreatePolicy        Kind = "create_policy"
	KindUpdatePolicy        Kind = "update_policy"
	KindApprovePolicy       Kind = "approve_policy"
	KindActivatePolicy      Kind = "activate_policy"
	KindSuspendPolicy       Kind = "suspend_policy"
	KindRevokePolicy        Kind = "revoke_policy"
	KindArchivePolicy       Kind = "archive_policy"
	KindEvaluatePolicy      Kind = "evaluate_policy"
	KindEnforcePolicy       Kind = "enforce_policy"
	KindRequestExemption    Kind = "request_exemption"
	KindGrantExemption      Kind = "grant_exemption"
	KindRevokeExemption     Kind = "revoke_exemption"
	KindCreatePolicySet     Kind = "create_policy_set"
	KindAddPolicyToSet      Kind = "add_policy_to_set"
	KindRemovePolicyFromSet Kind = "remove_policy_from_set"
	KindActivatePolicySet   Kind = "activate_policy_set"
)

// Command is a request to change an aggregate. The set of implementations
// is closed.
type Command interface {
	Kind() Kind
	isCommand()
}

// Meta links a command to the events that caused it.
type Meta struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	CausationID   uuid.UUID `json:"causation_id"`
}

type CreatePolicy struct {
	Meta
	Name             string                  `json:"name"`
	Description      string                  `json:"description"`
	Rules            []domain.Rule           `json:"rules"`
	Target           domain.Target           `json:"target"`
	EnforcementLevel domain.EnforcementLevel `json:"enforcement_level"`
	CreatedBy        string                  `json:"created_by"`
}

type UpdatePolicy struct {
	Meta
	PolicyID         uuid.UUID                `json:"policy_id"`
	Description      *string                  `json:"description,omitempty"`
	Rules            []domain.Rule            `json:"rules,omitempty"`
	EnforcementLevel *domain.EnforcementLevel `json:"enforcement_level,omitempty"`
	UpdatedBy        string                   `json:"updated_by"`
}

type ApprovePolicy struct {
	Meta
	PolicyID   uuid.UUID `json:"policy_id"`
	ApprovedBy string    `json:"approved_by"`
	Comments   string    `json:"comments,omitempty"`
}

type ActivatePolicy struct {
	Meta
	PolicyID    uuid.UUID `json:"policy_id"`
	ActivatedBy string    `json:"activated_by"`
}

type SuspendPolicy struct {
	Meta
	PolicyID       uuid.UUID  `json:"policy_id"`
	SuspendedBy    string     `json:"suspended_by"`
	Reason         string     `json:"reason"`
	ExpectedResume *time.Time `json:"expected_resume,omitempty"`
}

type RevokePolicy struct {
	Meta
	PolicyID  uuid.UUID `json:"policy_id"`
	Reason    string    `json:"reason"`
	Immediate bool      `json:"immediate"`
}

type ArchivePolicy struct {
	Meta
	PolicyID      uuid.UUID `json:"policy_id"`
	RetentionDays int       `json:"retention_days"`
}

// EvaluatePolicy asks for an evaluation. AuditMode records the result
// against AuditID without enforcing it.
type EvaluatePolicy struct {
	Meta
	PolicyID  uuid.UUID      `json:"policy_id"`
	Context   domain.Context `json:"context"`
	AuditMode bool           `json:"audit_mode"`
	AuditID   *uuid.UUID     `json:"audit_id,omitempty"`
}

type EnforcePolicy struct {
	Meta
	PolicyIDs []uuid.UUID              `json:"policy_ids"`
	Action    domain.EnforcementAction `json:"action"`
	Reason    string                   `json:"reason,omitempty"`
}

type RequestExemption struct {
	Meta
	PolicyID      uuid.UUID             `json:"policy_id"`
	Reason        string                `json:"reason"`
	Justification string                `json:"justification"`
	RequestedBy   string                `json:"requested_by"`
	Duration      time.Duration         `json:"duration"`
	Scope         domain.ExemptionScope `json:"scope"`
}

type GrantExemption struct {
	Meta
	PolicyID       uuid.UUID                   `json:"policy_id"`
	Reason         string                      `json:"reason"`
	Justification  string                      `json:"justification"`
	RiskAcceptance string                      `json:"risk_acceptance"`
	ApprovedBy     string                      `json:"approved_by"`
	Duration       time.Duration               `json:"duration"`
	Scope          domain.ExemptionScope       `json:"scope"`
	Conditions     []domain.ExemptionCondition `json:"conditions,omitempty"`
}

type RevokeExemption struct {
	Meta
	ExemptionID uuid.UUID `json:"exemption_id"`
	RevokedBy   string    `json:"revoked_by"`
	Reason      string    `json:"reason"`
}

type CreatePolicySet struct {
	Meta
	Name               string                    `json:"name"`
	Description        string                    `json:"description"`
	Composition        domain.CompositionRule    `json:"composition"`
	ConflictResolution domain.ConflictResolution `json:"conflict_resolution"`
	CreatedBy          string                    `json:"created_by"`
}

type AddPolicyToSet struct {
	Meta
	SetID    uuid.UUID `json:"set_id"`
	PolicyID uuid.UUID `json:"policy_id"`
}

type RemovePolicyFromSet struct {
	Meta
	SetID    uuid.UUID `json:"set_id"`
	PolicyID uuid.UUID `json:"policy_id"`
}

type ActivatePolicySet struct {
	Meta
	SetID uuid.UUID `json:"set_id"`
}

func (CreatePolicy) Kind() Kind        { return KindCreatePolicy }
func (UpdatePolicy) Kind() Kind        { return KindUpdatePolicy }
func (ApprovePolicy) Kind() Kind       { return KindApprovePolicy }
func (ActivatePolicy) Kind() Kind      { return KindActivatePolicy }
func (SuspendPolicy) Kind() Kind       { return KindSuspendPolicy }
func (RevokePolicy) Kind() Kind        { return KindRevokePolicy }
func (ArchivePolicy) Kind() Kind       { return KindArchivePolicy }
func (EvaluatePolicy) Kind() Kind      { return KindEvaluatePolicy }
func (EnforcePolicy) Kind() Kind       { return KindEnforcePolicy }
func (RequestExemption) Kind() Kind    { return KindRequestExemption }
func (GrantExemption) Kind() Kind      { return KindGrantExemption }
func (RevokeExemption) Kind() Kind     { return KindRevokeExemption }
func (CreatePolicySet) Kind() Kind     { return KindCreatePolicySet }
func (AddPolicyToSet) Kind() Kind      { return KindAddPolicyToSet }
func (RemovePolicyFromSet) Kind() Kind { return KindRemovePolicyFromSet }
func (ActivatePolicySet) Kind() Kind   { return KindActivatePolicySet }

func (CreatePolicy) isCommand()        {}
func (UpdatePolicy) isCommand()        {}
func (ApprovePolicy) isCommand()       {}
func (ActivatePolicy) isCommand()      {}
func (SuspendPolicy) isCommand()       {}
func (RevokePolicy) isCommand()        {}
func (ArchivePolicy) isCommand()       {}
func (EvaluatePolicy) isCommand()      {}
func (EnforcePolicy) isCommand()       {}
func (RequestExemption) isCommand()    {}
func (GrantExemption) isCommand()      {}
func (RevokeExemption) isCommand()     {}
func (CreatePolicySet) isCommand()     {}
func (AddPolicyToSet) isCommand()      {}
func (RemovePolicyFromSet) isCommand() {}
func (ActivatePolicySet) isCommand()   {}

// Kinds lists every command kind.
var Kinds = []Kind{
	KindCreatePolicy, KindUpdatePolicy, KindApprovePolicy, KindActivatePolicy,
	KindSuspendPolicy, KindRevokePolicy, KindArchivePolicy, KindEvaluatePolicy,
	KindEnforcePolicy, KindRequestExemption, KindGrantExemption, KindRevokeExemption,
	KindCreatePolicySet, KindAddPolicyToSet, KindRemovePolicyFromSet, KindActivatePolicySet,
}

// MetaOf returns the correlation metadata carried by c.
func MetaOf(c Command) Meta {
	switch v := c.(type) {
	case CreatePolicy:
		return v.Meta
	case UpdatePolicy:
		return v.Meta
	case ApprovePolicy:
		return v.Meta
	case ActivatePolicy:
		return v.Meta
	case SuspendPolicy:
		return v.Meta
	case RevokePolicy:
		return v.Meta
	case ArchivePolicy:
		return v.Meta
	case EvaluatePolicy:
		return v.Meta
	case EnforcePolicy:
		return v.Meta
	case RequestExemption:
		return v.Meta
	case GrantExemption:
		return v.Meta
	case RevokeExemption:
		return v.Meta
	case CreatePolicySet:
		return v.Meta
	case AddPolicyToSet:
		return v.Meta
	case RemovePolicyFromSet:
		return v.Meta
	case ActivatePolicySet:
		return v.Meta
	default:
		return Meta{}
	}
}
