package parser

import (
	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/domain"
)

// namespace seeds the name-derived identifiers of bundle entries.
var namespace = uuid.MustParse("6f1d3c8e-2b4a-5e71-9c0d-8a7b6e5f4d3c")

// DeriveID returns the identifier a bundle entry of kind gets when it does
// not declare one.
func DeriveID(kind, name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(kind+":"+name))
}

// Bundle is the decoded content of one or more bundle files.
type Bundle struct {
	Sources    []string
	Policies   []*domain.Policy
	Sets       []*domain.PolicySet
	Exemptions []*domain.Exemption
}

// Policy finds a policy by name or id.
func (b *Bundle) Policy(ref string) (*domain.Policy, bool) {
	id, idErr := uuid.Parse(ref)
	for _, p := range b.Policies {
		if p.Name == ref || (idErr == nil && p.ID == id) {
			return p, true
		}
	}
	return nil, false
}

// Set finds a policy set by name or id.
func (b *Bundle) Set(ref string) (*domain.PolicySet, bool) {
	id, idErr := uuid.Parse(ref)
	for _, s := range b.Sets {
		if s.Name == ref || (idErr == nil && s.ID == id) {
			return s, true
		}
	}
	return nil, false
}

// Members returns the policies of set in membership order.
func (b *Bundle) Members(set *domain.PolicySet) []*domain.Policy {
	out := make([]*domain.Policy, 0, len(set.Policies))
	for _, id := range set.Policies {
		if p, ok := b.Policy(id.String()); ok {
			out = append(out, p)
		}
	}
	return out
}

// ExemptionsFor returns the exemptions bound to policyID.
func (b *Bundle) ExemptionsFor(policyID uuid.UUID) []*domain.Exemption {
	var out []*domain.Exemption
	for _, e := range b.Exemptions {
		if e.PolicyID == policyID {
			out = append(out, e)
		}
	}
	return out
}
