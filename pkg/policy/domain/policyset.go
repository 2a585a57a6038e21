package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// PolicySet groups policy ids under a composition rule and a conflict
// resolution strategy.
type PolicySet struct {
	ID                 uuid.UUID          `json:"id"`
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	Policies           []uuid.UUID        `json:"policies"`
	Composition        CompositionRule    `json:"composition"`
	ConflictResolution ConflictResolution `json:"conflict_resolution"`
	Status             PolicyStatus       `json:"status"`
	CreatedBy          string             `json:"created_by"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	Revision           uint64             `json:"revision"`
}

// NewPolicySet returns a Draft set with the default strategies: All and
// MostRestrictive.
func NewPolicySet(id uuid.UUID, name, description, createdBy string, now time.Time) *PolicySet {
	return &PolicySet{
		ID:                 id,
		Name:               name,
		Description:        description,
		Composition:        All(),
		ConflictResolution: ResolveMostRestrictive,
		Status:             StatusDraft,
		CreatedBy:          createdBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Contains reports whether the set holds policyID.
func (s *PolicySet) Contains(policyID uuid.UUID) bool {
	return slices.Contains(s.Policies, policyID)
}

// AddPolicy appends policyID unless it is already a member. It reports
// whether the set changed.
func (s *PolicySet) AddPolicy(policyID uuid.UUID) bool {
	if s.Contains(policyID) {
		return false
	}
	s.Policies = append(s.Policies, policyID)
	return true
}

// RemovePolicy drops policyID. Removing an absent id is a no-op. It reports
// whether the set changed.
func (s *PolicySet) RemovePolicy(policyID uuid.UUID) bool {
	before := len(s.Policies)
	s.Policies = slices.DeleteFunc(s.Policies, func(id uuid.UUID) bool { return id == policyID })
	return len(s.Policies) != before
}

// Activate marks a Draft or Approved set Active.
func (s *PolicySet) Activate(now time.Time) error {
	if s.Status != StatusDraft && s.Status != StatusApproved {
		return &InvalidTransitionError{Entity: "policy set " + s.ID.String(), From: string(s.Status), To: string(StatusActive)}
	}
	s.Status = StatusActive
	s.UpdatedAt = now
	return nil
}

// Clone returns a deep copy.
func (s *PolicySet) Clone() *PolicySet {
	c := *s
	c.Policies = slices.Clone(s.Policies)
	return &c
}
