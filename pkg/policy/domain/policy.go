package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// PolicyMetadata carries authoring information.
type PolicyMetadata struct {
	CreatedBy           string    `json:"created_by"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	Tags                []string  `json:"tags,omitempty"`
	ComplianceStandards []string  `json:"compliance_standards,omitempty"`
	DocumentationURL    string    `json:"documentation_url,omitempty"`
}

// Policy is the aggregate root for a named, versioned bundle of rules.
type Policy struct {
	ID               uuid.UUID        `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description,omitempty"`
	Version          uint32           `json:"version"`
	Status           PolicyStatus     `json:"status"`
	Rules            []Rule           `json:"rules"`
	Target           Target           `json:"target"`
	EnforcementLevel EnforcementLevel `json:"enforcement_level"`
	EffectiveDate    *time.Time       `json:"effective_date,omitempty"`
	ExpiryDate       *time.Time       `json:"expiry_date,omitempty"`
	ParentPolicyID   *uuid.UUID       `json:"parent_policy_id,omitempty"`
	Metadata         PolicyMetadata   `json:"metadata"`

	// Revision counts the events folded into this state. The event log uses
	// it for optimistic concurrency.
	Revision uint64 `json:"revision"`
}

// NewPolicy returns a Draft policy at version 1.
func NewPolicy(id uuid.UUID, name, description string, createdBy string, now time.Time) *Policy {
	return &Policy{
		ID:               id,
		Name:             name,
		Description:      description,
		Version:          1,
		Status:           StatusDraft,
		Target:           GlobalTarget(),
		EnforcementLevel: EnforcementSoft,
		Metadata: PolicyMetadata{
			CreatedBy: createdBy,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// IsEffective reports whether the policy may be evaluated at now.
func (p *Policy) IsEffective(now time.Time) bool {
	if p.Status != StatusActive {
		return false
	}
	if p.EffectiveDate != nil && now.Before(*p.EffectiveDate) {
		return false
	}
	if p.ExpiryDate != nil && now.After(*p.ExpiryDate) {
		return false
	}
	return true
}

// CanTransitionTo reports whether the lifecycle table allows next.
func (p *Policy) CanTransitionTo(next PolicyStatus) bool {
	return p.Status.CanTransitionTo(next)
}

// TransitionTo moves the policy to next, or returns an InvalidTransitionError
// and leaves the policy unchanged.
func (p *Policy) TransitionTo(next PolicyStatus, now time.Time) error {
	if !p.CanTransitionTo(next) {
		return &InvalidTransitionError{Entity: "policy " + p.ID.String(), From: string(p.Status), To: string(next)}
	}
	p.Status = next
	p.Metadata.UpdatedAt = now
	return nil
}

// CreateVersion returns a Draft successor with a new id, the next version
// number and ParentPolicyID pointing at p.
func (p *Policy) CreateVersion(newID uuid.UUID, now time.Time) *Policy {
	next := p.Clone()
	parent := p.ID
	next.ID = newID
	next.Version = p.Version + 1
	next.Status = StatusDraft
	next.ParentPolicyID = &parent
	next.Metadata.CreatedAt = now
	next.Metadata.UpdatedAt = now
	next.Revision = 0
	return next
}

// Rule returns the rule with the given id.
func (p *Policy) Rule(id string) (Rule, bool) {
	for _, r := range p.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// Validate checks the policy structure: a name, unique rule ids and valid
// expressions.
func (p *Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy %s: name is empty", p.ID)
	}
	seen := make(map[string]struct{}, len(p.Rules))
	for _, r := range p.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("policy %q: %w", p.Name, err)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("policy %q: duplicate rule id %q", p.Name, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	if p.EffectiveDate != nil && p.ExpiryDate != nil && p.ExpiryDate.Before(*p.EffectiveDate) {
		return fmt.Errorf("policy %q: expiry date precedes effective date", p.Name)
	}
	return nil
}

// Clone returns a deep copy. Expressions are immutable and shared.
func (p *Policy) Clone() *Policy {
	c := *p
	c.Rules = slices.Clone(p.Rules)
	c.Target = p.Target.Clone()
	c.Metadata.Tags = slices.Clone(p.Metadata.Tags)
	c.Metadata.ComplianceStandards = slices.Clone(p.Metadata.ComplianceStandards)
	if p.EffectiveDate != nil {
		t := *p.EffectiveDate
		c.EffectiveDate = &t
	}
	if p.ExpiryDate != nil {
		t := *p.ExpiryDate
		c.ExpiryDate = &t
	}
	if p.ParentPolicyID != nil {
		id := *p.ParentPolicyID
		c.ParentPolicyID = &id
	}
	return &c
}
