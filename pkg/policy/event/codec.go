package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownType is returned when decoding a record whose type has no
// registered payload.
var ErrUnknownType = errors.New("unknown event type")

// Record is the storage form of an Event.
type Record struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	Seq           uint64          `json:"seq"`
	Type          Type            `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	Actor         string          `json:"actor"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	CausationID   uuid.UUID       `json:"causation_id"`
	Payload       json.RawMessage `json:"payload"`
}

var registry = map[Type]func() Payload{
	TypePolicyCreated:           func() Payload { return &PolicyCreated{} },
	TypePolicyUpdated:           func() Payload { return &PolicyUpdated{} },
	TypePolicySubmitted:         func() Payload { return &PolicySubmitted{} },
	TypePolicyReviewRejected:    func() Payload { return &PolicyReviewRejected{} },
	TypePolicyApproved:          func() Payload { return &PolicyApproved{} },
	TypePolicyActivated:         func() Payload { return &PolicyActivated{} },
	TypePolicySuspended:         func() Payload { return &PolicySuspended{} },
	TypePolicyRevoked:           func() Payload { return &PolicyRevoked{} },
	TypePolicyArchived:          func() Payload { return &PolicyArchived{} },
	TypePolicyEvaluated:         func() Payload { return &PolicyEvaluated{} },
	TypePolicyViolationDetected: func() Payload { return &PolicyViolationDetected{} },
	TypePolicyCompliancePassed:  func() Payload { return &PolicyCompliancePassed{} },
	TypePolicyEnforced:          func() Payload { return &PolicyEnforced{} },
	TypeExemptionReviewStarted:  func() Payload { return &ExemptionReviewStarted{} },
	TypeExemptionDenied:         func() Payload { return &ExemptionDenied{} },
	TypeExemptionGranted:        func() Payload { return &ExemptionGranted{} },
	TypeExemptionRevoked:        func() Payload { return &ExemptionRevoked{} },
	TypeExemptionExpired:        func() Payload { return &ExemptionExpired{} },
	TypePolicySetCreated:        func() Payload { return &PolicySetCreated{} },
	TypePolicyAddedToSet:        func() Payload { return &PolicyAddedToSet{} },
	TypePolicyRemovedFromSet:    func() Payload { return &PolicyRemovedFromSet{} },
	TypePolicySetActivated:      func() Payload { return &PolicySetActivated{} },
	TypePolicyConflictDetected:  func() Payload { return &PolicyConflictDetected{} },
}

// Types returns every event type with a registered payload.
func Types() []Type {
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}

// Encode converts an event to its storage form.
func Encode(e Event) (Record, error) {
	if e.Payload == nil {
		return Record{}, fmt.Errorf("encode event %s: nil payload", e.ID)
	}
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s payload: %w", e.Type, err)
	}
	return Record{
		EventID:       e.ID,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Seq:           e.Seq,
		Type:          e.Type,
		Timestamp:     e.Timestamp,
		Actor:         e.Actor,
		CorrelationID: e.CorrelationID,
		CausationID:   e.CausationID,
		Payload:       body,
	}, nil
}

// Decode rebuilds an event from its storage form. Payloads are returned as
// values, not pointers.
func Decode(r Record) (Event, error) {
	newPayload, ok := registry[r.Type]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}
	ptr := newPayload()
	if err := json.Unmarshal(r.Payload, ptr); err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", r.Type, err)
	}
	payload, err := deref(ptr)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            r.EventID,
		AggregateID:   r.AggregateID,
		AggregateType: r.AggregateType,
		Seq:           r.Seq,
		Type:          r.Type,
		Timestamp:     r.Timestamp,
		Actor:         r.Actor,
		CorrelationID: r.CorrelationID,
		CausationID:   r.CausationID,
		Payload:       payload,
	}, nil
}

func deref(p Payload) (Payload, error) {
	switch v := p.(type) {
	case *PolicyCreated:
		return *v, nil
	case *PolicyUpdated:
		return *v, nil
	case *PolicySubmitted:
		return *v, nil
	case *PolicyReviewRejected:
		return *v, nil
	case *PolicyApproved:
		return *v, nil
	case *PolicyActivated:
		return *v, nil
	case *PolicySuspended:
		return *v, nil
	case *PolicyRevoked:
		return *v, nil
	case *PolicyArchived:
		return *v, nil
	case *PolicyEvaluated:
		return *v, nil
	case *PolicyViolationDetected:
		return *v, nil
	case *PolicyCompliancePassed:
		return *v, nil
	case *PolicyEnforced:
		return *v, nil
	case *ExemptionReviewStarted:
		return *v, nil
	case *ExemptionDenied:
		return *v, nil
	case *ExemptionGranted:
		return *v, nil
	case *ExemptionRevoked:
		return *v, nil
	case *ExemptionExpired:
		return *v, nil
	case *PolicySetCreated:
		return *v, nil
	case *PolicyAddedToSet:
		return *v, nil
	case *PolicyRemovedFromSet:
		return *v, nil
	case *PolicySetActivated:
		return *v, nil
	case *PolicyConflictDetected:
		return *v, nil
	default:
		return nil, fmt.Errorf("%w: payload %T", ErrUnknownType, p)
	}
}
