package aggregate

import (
	"slices"

	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

// ApplyPolicy folds one event into a policy. state is nil before the
// creation event and is never modified.
func ApplyPolicy(state *domain.Policy, e event.Event) (*domain.Policy, error) {
	if e.AggregateType != event.AggregatePolicy {
		return state, nil
	}
	if state != nil && e.AggregateID != state.ID {
		return state, nil
	}

	if created, ok := e.Payload.(event.PolicyCreated); ok {
		if state != nil {
			return nil, sequenceError(e, "")
		}
		return newPolicy(created, e), nil
	}
	if state == nil {
		return nil, sequenceError(e, event.TypePolicyCreated)
	}

	next := state.Clone()
	switch p := e.Payload.(type) {
	case event.PolicyUpdated:
		applyPolicyUpdate(next, p)
		next.Metadata.UpdatedAt = e.Timestamp
	case event.PolicySubmitted:
		setStatus(next, domain.StatusUnderReview, e)
	case event.PolicyReviewRejected:
		if p.ReturnToDraft {
			setStatus(next, domain.StatusDraft, e)
		}
	case event.PolicyApproved:
		setStatus(next, domain.StatusApproved, e)
	case event.PolicyActivated:
		setStatus(next, domain.StatusActive, e)
		if p.EffectiveFrom != nil {
			t := *p.EffectiveFrom
			next.EffectiveDate = &t
		}
		if p.EffectiveUntil != nil {
			t := *p.EffectiveUntil
			next.ExpiryDate = &t
		}
	case event.PolicySuspended:
		setStatus(next, domain.StatusSuspended, e)
	case event.PolicyRevoked:
		setStatus(next, domain.StatusRevoked, e)
	case event.PolicyArchived:
		setStatus(next, domain.StatusArchived, e)
	case event.PolicyEvaluated, event.PolicyViolationDetected, event.PolicyCompliancePassed:
		// Evaluation records do not change the definition.
	default:
		return nil, unsupported(e)
	}
	next.Revision++
	return next, nil
}

// FoldPolicy replays a policy history. An empty history yields nil.
func FoldPolicy(events []event.Event) (*domain.Policy, error) {
	return fold[domain.Policy](events, event.TypePolicyCreated, ApplyPolicy)
}

func newPolicy(p event.PolicyCreated, e event.Event) *domain.Policy {
	policy := domain.NewPolicy(p.PolicyID, p.Name, p.Description, p.CreatedBy, p.CreatedAt)
	if p.Version > 0 {
		policy.Version = p.Version
	}
	policy.Rules = slices.Clone(p.Rules)
	policy.Target = p.Target.Clone()
	policy.EnforcementLevel = p.EnforcementLevel
	policy.EffectiveDate = cloneTime(p.EffectiveDate)
	policy.ExpiryDate = cloneTime(p.ExpiryDate)
	if p.ParentPolicyID != nil {
		id := *p.ParentPolicyID
		policy.ParentPolicyID = &id
	}
	policy.Metadata.Tags = slices.Clone(p.Tags)
	policy.Metadata.ComplianceStandards = slices.Clone(p.ComplianceStandards)
	policy.Metadata.DocumentationURL = p.DocumentationURL
	if policy.Metadata.CreatedAt.IsZero() {
		policy.Metadata.CreatedAt = e.Timestamp
		policy.Metadata.UpdatedAt = e.Timestamp
	}
	policy.Revision = 1
	return policy
}

func applyPolicyUpdate(p *domain.Policy, u event.PolicyUpdated) {
	if u.Version > p.Version {
		p.Version = u.Version
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Rules != nil {
		p.Rules = slices.Clone(u.Rules)
	}
	if u.Target != nil {
		p.Target = u.Target.Clone()
	}
	if u.EnforcementLevel != nil {
		p.EnforcementLevel = *u.EnforcementLevel
	}
	if u.EffectiveDate != nil {
		p.EffectiveDate = cloneTime(u.EffectiveDate)
	}
	if u.ExpiryDate != nil {
		p.ExpiryDate = cloneTime(u.ExpiryDate)
	}
}

func setStatus(p *domain.Policy, status domain.PolicyStatus, e event.Event) {
	p.Status = status
	p.Metadata.UpdatedAt = e.Timestamp
}
