package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies an event.
type Type string

// AggregateType identifies the stream an event belongs to.
type AggregateType string

const (
	AggregatePolicy           AggregateType = "policy"
	AggregatePolicySet        AggregateType = "policy_set"
	AggregateExemption        AggregateType = "exemption"
	AggregateExemptionRequest AggregateType = "exemption_request"
	AggregateEnforcement      AggregateType = "enforcement"
)

const (
	// Policy lifecycle.
	TypePolicyCreated        Type = "policy.created"
	TypePolicyUpdated        Type = "policy.updated"
	TypePolicySubmitted      Type = "policy.submitted"
	TypePolicyReviewRejected Type = "policy.review_rejected"
	TypePolicyApproved       Type = "policy.approved"
	TypePolicyActivated      Type = "policy.activated"
	TypePolicySuspended      Type = "policy.suspended"
	TypePolicyRevoked        Type = "policy.revoked"
	TypePolicyArchived       Type = "policy.archived"

	// Evaluation and enforcement.
	TypePolicyEvaluated         Type = "policy.evaluated"
	TypePolicyViolationDetected Type = "policy.violation_detected"
	TypePolicyCompliancePassed  Type = "policy.compliance_passed"
	TypePolicyEnforced          Type = "policy.enforced"

	// Exemptions.
	TypeExemptionReviewStarted Type = "exemption.review_started"
	TypeExemptionDenied        Type = "exemption.denied"
	TypeExemptionGranted       Type = "exemption.granted"
	TypeExemptionRevoked       Type = "exemption.revoked"
	TypeExemptionExpired       Type = "exemption.expired"

	// Policy sets.
	TypePolicySetCreated       Type = "policy_set.created"
	TypePolicyAddedToSet       Type = "policy_set.policy_added"
	TypePolicyRemovedFromSet   Type = "policy_set.policy_removed"
	TypePolicySetActivated     Type = "policy_set.activated"
	TypePolicyConflictDetected Type = "policy_set.conflict_detected"
)

// Payload is the event-specific body. Each payload type reports its Type and
// the stream it belongs to.
type Payload interface {
	EventType() Type
	Aggregate() AggregateType
}

// Event is one immutable fact in an aggregate's history.
type Event struct {
	ID            uuid.UUID
	AggregateID   uuid.UUID
	AggregateType AggregateType
	// Seq is the 1-based position in the aggregate stream. It is zero until
	// the event log assigns it.
	Seq           uint64
	Type          Type
	Timestamp     time.Time
	Actor         string
	CorrelationID uuid.UUID
	CausationID   uuid.UUID
	Payload       Payload
}

// Option adjusts a new event.
type Option func(*Event)

// WithCorrelation sets the correlation and causation ids.
func WithCorrelation(correlationID, causationID uuid.UUID) Option {
	return func(e *Event) {
		e.CorrelationID = correlationID
		e.CausationID = causationID
	}
}

// WithID overrides the generated event id.
func WithID(id uuid.UUID) Option {
	return func(e *Event) { e.ID = id }
}

// New wraps payload in an envelope for aggregateID. The correlation id
// defaults to the event id.
func New(aggregateID uuid.UUID, payload Payload, actor string, at time.Time, opts ...Option) Event {
	e := Event{
		ID:            uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: payload.Aggregate(),
		Type:          payload.EventType(),
		Timestamp:     at.UTC(),
		Actor:         actor,
		Payload:       payload,
	}
	for _, opt := range opts {
		opt(&e)
	}
	if e.CorrelationID == uuid.Nil {
		e.CorrelationID = e.ID
	}
	return e
}

// CausedBy returns options that correlate a follow-up event with cause.
func CausedBy(cause Event) Option {
	return WithCorrelation(cause.CorrelationID, cause.ID)
}

// IsCreation reports whether t opens an aggregate stream.
func IsCreation(t Type) bool {
	switch t {
	case TypePolicyCreated, TypePolicySetCreated, TypeExemptionGranted:
		return true
	default:
		return false
	}
}
