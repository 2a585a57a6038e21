package manager

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync/atomic"
	"time"

	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/parser"
)

// Snapshot is one installed bundle.
type Snapshot struct {
	Bundle *parser.Bundle

	// Version is a digest of the bundle content. Parse timestamps are
	// excluded, so reparsing unchanged files yields the same version.
	Version  string
	LoadedAt time.Time
	Source   string
}

// CatalogStats summarizes the current snapshot.
type CatalogStats struct {
	Version    string
	LoadedAt   time.Time
	Source     string
	Policies   int
	Sets       int
	Exemptions int
}

// Catalog holds the current snapshot. It is safe for concurrent use.
type Catalog struct {
	current atomic.Pointer[Snapshot]
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Replace installs bundle as the current snapshot and returns it.
func (c *Catalog) Replace(bundle *parser.Bundle, source string, at time.Time) (*Snapshot, error) {
	if bundle == nil {
		return nil, ErrNilBundle
	}
	snap := &Snapshot{
		Bundle:   bundle,
		Version:  Fingerprint(bundle),
		LoadedAt: at,
		Source:   source,
	}
	c.current.Store(snap)
	return snap, nil
}

// Snapshot returns the current snapshot, or nil before the first load.
func (c *Catalog) Snapshot() *Snapshot {
	return c.current.Load()
}

// Policy finds a policy by name or id.
func (c *Catalog) Policy(ref string) (*domain.Policy, bool) {
	snap := c.current.Load()
	if snap == nil {
		return nil, false
	}
	return snap.Bundle.Policy(ref)
}

// Set finds a policy set by name or id.
func (c *Catalog) Set(ref string) (*domain.PolicySet, bool) {
	snap := c.current.Load()
	if snap == nil {
		return nil, false
	}
	return snap.Bundle.Set(ref)
}

// Policies returns the loaded policies sorted by name.
func (c *Catalog) Policies() []*domain.Policy {
	snap := c.current.Load()
	if snap == nil {
		return nil
	}
	policies := append([]*domain.Policy(nil), snap.Bundle.Policies...)
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies
}

// Sets returns the loaded policy sets sorted by name.
func (c *Catalog) Sets() []*domain.PolicySet {
	snap := c.current.Load()
	if snap == nil {
		return nil
	}
	sets := append([]*domain.PolicySet(nil), snap.Bundle.Sets...)
	sort.Slice(sets, func(i, j int) bool { return sets[i].Name < sets[j].Name })
	return sets
}

// Exemptions returns the loaded exemptions.
func (c *Catalog) Exemptions() []*domain.Exemption {
	snap := c.current.Load()
	if snap == nil {
		return nil
	}
	return append([]*domain.Exemption(nil), snap.Bundle.Exemptions...)
}

// Version returns the current bundle version, or "" before the first load.
func (c *Catalog) Version() string {
	if snap := c.current.Load(); snap != nil {
		return snap.Version
	}
	return ""
}

// Stats summarizes the current snapshot.
func (c *Catalog) Stats() CatalogStats {
	snap := c.current.Load()
	if snap == nil {
		return CatalogStats{}
	}
	return CatalogStats{
		Version:    snap.Version,
		LoadedAt:   snap.LoadedAt,
		Source:     snap.Source,
		Policies:   len(snap.Bundle.Policies),
		Sets:       len(snap.Bundle.Sets),
		Exemptions: len(snap.Bundle.Exemptions),
	}
}

// Fingerprint returns a content digest of bundle, independent of entry order
// and of the timestamps the parser stamps on policies and sets.
func Fingerprint(bundle *parser.Bundle) string {
	policies := make([]*domain.Policy, 0, len(bundle.Policies))
	for _, p := range bundle.Policies {
		c := p.Clone()
		c.Metadata.CreatedAt = time.Time{}
		c.Metadata.UpdatedAt = time.Time{}
		policies = append(policies, c)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].ID.String() < policies[j].ID.String() })

	sets := make([]*domain.PolicySet, 0, len(bundle.Sets))
	for _, s := range bundle.Sets {
		c := s.Clone()
		c.CreatedAt = time.Time{}
		c.UpdatedAt = time.Time{}
		sets = append(sets, c)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].ID.String() < sets[j].ID.String() })

	exemptions := append([]*domain.Exemption(nil), bundle.Exemptions...)
	sort.Slice(exemptions, func(i, j int) bool { return exemptions[i].ID.String() < exemptions[j].ID.String() })

	h := sha256.New()
	enc := json.NewEncoder(h)
	// Encoding errors only arise from unsupported values, which the domain
	// types do not contain.
	_ = enc.Encode(policies)
	_ = enc.Encode(sets)
	_ = enc.Encode(exemptions)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
