package aggregate

import (
	"slices"

	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

// ApplyExemption folds one event into an exemption. A grant re-initializes
// scope, conditions and validity window. Once revoked or expired the
// exemption ignores every further event.
func ApplyExemption(state *domain.Exemption, e event.Event) (*domain.Exemption, error) {
	if e.AggregateType != event.AggregateExemption {
		return state, nil
	}
	if state != nil && e.AggregateID != state.ID {
		return state, nil
	}
	if state == nil {
		granted, ok := e.Payload.(event.ExemptionGranted)
		if !ok {
			return nil, sequenceError(e, event.TypeExemptionGranted)
		}
		x := &domain.Exemption{
			ID:       granted.ExemptionID,
			Status:   domain.ExemptionStatus{State: domain.ExemptionActive},
			Revision: 1,
		}
		grant(x, granted, e)
		return x, nil
	}
	if state.Status.Terminal() {
		return state, nil
	}

	next := state.Clone()
	switch p := e.Payload.(type) {
	case event.ExemptionGranted:
		grant(next, p, e)
	case event.ExemptionRevoked:
		if err := next.Revoke(p.RevokedBy, p.Reason, e.Timestamp); err != nil {
			return nil, err
		}
	case event.ExemptionExpired:
		if err := next.Expire(); err != nil {
			return nil, err
		}
	default:
		return nil, unsupported(e)
	}
	next.Revision++
	return next, nil
}

// FoldExemption replays an exemption history. An empty history yields nil.
func FoldExemption(events []event.Event) (*domain.Exemption, error) {
	return fold[domain.Exemption](events, event.TypeExemptionGranted, ApplyExemption)
}

// grant copies the grant's terms onto x.
func grant(x *domain.Exemption, p event.ExemptionGranted, e event.Event) {
	x.PolicyID = p.PolicyID
	x.Reason = p.Reason
	x.Justification = p.Justification
	x.RiskAcceptance = p.RiskAcceptance
	x.ApprovedBy = p.GrantedBy
	x.ApprovedAt = e.Timestamp
	x.ValidFrom = p.ValidFrom
	x.ValidUntil = p.ValidUntil
	x.Scope = p.Scope
	x.Conditions = slices.Clone(p.Conditions)
}
