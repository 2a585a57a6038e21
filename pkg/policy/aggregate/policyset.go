package aggregate

import (
	"slices"

	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

// ApplyPolicySet folds one event into a policy set. Adding a member twice
// and removing an absent member are both no-ops on the membership.
func ApplyPolicySet(state *domain.PolicySet, e event.Event) (*domain.PolicySet, error) {
	if e.AggregateType != event.AggregatePolicySet {
		return state, nil
	}
	if state != nil && e.AggregateID != state.ID {
		return state, nil
	}

	if created, ok := e.Payload.(event.PolicySetCreated); ok {
		if state != nil {
			return nil, sequenceError(e, "")
		}
		return newPolicySet(created, e), nil
	}
	if state == nil {
		return nil, sequenceError(e, event.TypePolicySetCreated)
	}

	next := state.Clone()
	switch p := e.Payload.(type) {
	case event.PolicyAddedToSet:
		next.AddPolicy(p.PolicyID)
	case event.PolicyRemovedFromSet:
		next.RemovePolicy(p.PolicyID)
	case event.PolicySetActivated:
		next.Status = domain.StatusActive
	case event.PolicyConflictDetected:
		// Conflicts are reported, not stored on the set.
	default:
		return nil, unsupported(e)
	}
	next.UpdatedAt = e.Timestamp
	next.Revision++
	return next, nil
}

// FoldPolicySet replays a policy set history. An empty history yields nil.
func FoldPolicySet(events []event.Event) (*domain.PolicySet, error) {
	return fold[domain.PolicySet](events, event.TypePolicySetCreated, ApplyPolicySet)
}

func newPolicySet(p event.PolicySetCreated, e event.Event) *domain.PolicySet {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = e.Timestamp
	}
	set := domain.NewPolicySet(p.SetID, p.Name, p.Description, p.CreatedBy, createdAt)
	if p.Composition.Kind != "" {
		set.Composition = p.Composition
	}
	if p.ConflictResolution != "" {
		set.ConflictResolution = p.ConflictResolution
	}
	for _, id := range slices.Clone(p.Policies) {
		set.AddPolicy(id)
	}
	set.Revision = 1
	return set
}
