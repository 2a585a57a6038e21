package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/ast"
)

// ScopeKind selects what an exemption covers.
type ScopeKind string

const (
	ScopeGlobal       ScopeKind = "global"
	ScopeOrganization ScopeKind = "organization"
	ScopeUser         ScopeKind = "user"
	ScopeResource     ScopeKind = "resource"
	ScopeOperation    ScopeKind = "operation"
)

// ResourceField is the context field a Resource-scoped exemption compares
// against.
const ResourceField = "resource"

// ExemptionScope bounds where an exemption applies.
type ExemptionScope struct {
	Kind           ScopeKind     `json:"kind"`
	OrganizationID uuid.UUID     `json:"organization_id,omitempty"`
	User           string        `json:"user,omitempty"`
	Resource       string        `json:"resource,omitempty"`
	Operation      OperationType `json:"operation,omitempty"`
}

// Matches reports whether the scope covers the context. Global always
// matches, User compares the requester and Resource compares the "resource"
// field. Organization and Operation scopes never match here.
func (s ExemptionScope) Matches(ctx Context) bool {
	switch s.Kind {
	case ScopeGlobal:
		return true
	case ScopeUser:
		return ctx.Requester != "" && ctx.Requester == s.User
	case ScopeResource:
		v, ok := ctx.Get(ResourceField)
		if !ok {
			return false
		}
		str, ok := v.(ast.String)
		return ok && string(str) == s.Resource
	default:
		return false
	}
}

// ConditionOperator compares an exemption condition against a context field.
type ConditionOperator string

const (
	ConditionEquals      ConditionOperator = "equals"
	ConditionNotEquals   ConditionOperator = "not_equals"
	ConditionGreaterThan ConditionOperator = "greater_than"
	ConditionLessThan    ConditionOperator = "less_than"
	ConditionContains    ConditionOperator = "contains"
	ConditionNotContains ConditionOperator = "not_contains"
)

// ExemptionCondition is an extra guard that must hold for an exemption to
// apply.
type ExemptionCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    ast.Value         `json:"value"`
}

// Holds evaluates the condition. A missing field never holds, and neither do
// comparisons between values that have no ordering or containment relation.
// NotContains is the negation of Contains once the field is present.
func (c ExemptionCondition) Holds(ctx Context) bool {
	actual, ok := ctx.Get(c.Field)
	if !ok {
		return false
	}

	switch c.Operator {
	case ConditionEquals:
		return ast.ValuesEqual(actual, c.Value)
	case ConditionNotEquals:
		return !ast.ValuesEqual(actual, c.Value)
	case ConditionGreaterThan:
		order, ordered := ast.Compare(actual, c.Value)
		return ordered && order > 0
	case ConditionLessThan:
		order, ordered := ast.Compare(actual, c.Value)
		return ordered && order < 0
	case ConditionContains:
		contains, comparable := valueContains(actual, c.Value)
		return comparable && contains
	case ConditionNotContains:
		contains, comparable := valueContains(actual, c.Value)
		return !(comparable && contains)
	default:
		return false
	}
}

// valueContains tests substring or list membership. The second result is
// false when the kinds do not support containment.
func valueContains(haystack, needle ast.Value) (bool, bool) {
	switch h := haystack.(type) {
	case ast.String:
		n, ok := needle.(ast.String)
		if !ok {
			return false, false
		}
		return strings.Contains(string(h), string(n)), true
	case ast.List:
		return ast.ListContains(h, needle), true
	default:
		return false, false
	}
}

// UnmarshalJSON decodes a condition with a tagged value.
func (c *ExemptionCondition) UnmarshalJSON(data []byte) error {
	var aux struct {
		Field    string            `json:"field"`
		Operator ConditionOperator `json:"operator"`
		Value    json.RawMessage   `json:"value"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v, err := ast.UnmarshalValue(aux.Value)
	if err != nil {
		return fmt.Errorf("condition %q: %w", aux.Field, err)
	}
	*c = ExemptionCondition{Field: aux.Field, Operator: aux.Operator, Value: v}
	return nil
}

// ExemptionState is the lifecycle state of an exemption.
type ExemptionState string

const (
	ExemptionActive  ExemptionState = "active"
	ExemptionExpired ExemptionState = "expired"
	ExemptionRevoked ExemptionState = "revoked"
)

// ExemptionStatus is the exemption state plus revocation details.
type ExemptionStatus struct {
	State     ExemptionState `json:"state"`
	RevokedBy string         `json:"revoked_by,omitempty"`
	RevokedAt *time.Time     `json:"revoked_at,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// Terminal reports whether no further change is possible.
func (s ExemptionStatus) Terminal() bool {
	return s.State == ExemptionExpired || s.State == ExemptionRevoked
}

// Exemption is an authorized, time and scope bounded bypass of one policy.
type Exemption struct {
	ID             uuid.UUID            `json:"id"`
	PolicyID       uuid.UUID            `json:"policy_id"`
	Reason         string               `json:"reason"`
	Justification  string               `json:"justification,omitempty"`
	RiskAcceptance string               `json:"risk_acceptance,omitempty"`
	ApprovedBy     string               `json:"approved_by"`
	ApprovedAt     time.Time            `json:"approved_at"`
	ValidFrom      time.Time            `json:"valid_from"`
	ValidUntil     time.Time            `json:"valid_until"`
	Scope          ExemptionScope       `json:"scope"`
	Conditions     []ExemptionCondition `json:"conditions,omitempty"`
	Status         ExemptionStatus      `json:"status"`
	Revision       uint64               `json:"revision"`
}

// IsValid reports whether the exemption is Active and now lies inside its
// validity window, bounds included.
func (e *Exemption) IsValid(now time.Time) bool {
	return e.Status.State == ExemptionActive &&
		!now.Before(e.ValidFrom) &&
		!now.After(e.ValidUntil)
}

// Applies reports whether the exemption covers ctx: the scope matches and
// every condition holds.
func (e *Exemption) Applies(ctx Context) bool {
	if !e.Scope.Matches(ctx) {
		return false
	}
	for _, cond := range e.Conditions {
		if !cond.Holds(ctx) {
			return false
		}
	}
	return true
}

// Revoke ends an Active exemption.
func (e *Exemption) Revoke(by, reason string, at time.Time) error {
	if e.Status.Terminal() {
		return &InvalidTransitionError{Entity: "exemption " + e.ID.String(), From: string(e.Status.State), To: string(ExemptionRevoked)}
	}
	e.Status = ExemptionStatus{State: ExemptionRevoked, RevokedBy: by, RevokedAt: &at, Reason: reason}
	return nil
}

// Expire ends an Active exemption whose window has passed.
func (e *Exemption) Expire() error {
	if e.Status.Terminal() {
		return &InvalidTransitionError{Entity: "exemption " + e.ID.String(), From: string(e.Status.State), To: string(ExemptionExpired)}
	}
	e.Status = ExemptionStatus{State: ExemptionExpired}
	return nil
}

// Clone returns a deep copy.
func (e *Exemption) Clone() *Exemption {
	c := *e
	c.Conditions = slices.Clone(e.Conditions)
	if e.Status.RevokedAt != nil {
		t := *e.Status.RevokedAt
		c.Status.RevokedAt = &t
	}
	return &c
}
