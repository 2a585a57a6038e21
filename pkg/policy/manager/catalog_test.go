package manager

import (
	"errors"
	"testing"
	"time"

	"mercator-hq/tribune/pkg/policy/parser"
)

const catalogBundle = `
policies:
  - name: Key Size
    status: active
    rules:
      - id: min-key-size
        when: {field: key_size, gte: 2048}
  - name: Algorithms
    status: active
    rules:
      - id: allowed
        when: {field: algorithm, in: [RSA, ECDSA]}
policy_sets:
  - name: PKI
    policies: [Key Size, Algorithms]
exemptions:
  - policy: Key Size
    reason: legacy HSM
    approved_by: ciso
    valid_from: 2026-01-01T00:00:00Z
    valid_until: 2026-06-30T00:00:00Z
`

func parseAt(t *testing.T, src string, at time.Time) *parser.Bundle {
	t.Helper()
	bundle, err := parser.NewParser().WithClock(func() time.Time { return at }).ParseBytes([]byte(src), "bundle.yaml")
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	return bundle
}

func TestCatalog_Empty(t *testing.T) {
	c := NewCatalog()

	if c.Snapshot() != nil {
		t.Error("Snapshot() on empty catalog should be nil")
	}
	if _, ok := c.Policy("Key Size"); ok {
		t.Error("Policy() on empty catalog should miss")
	}
	if _, ok := c.Set("PKI"); ok {
		t.Error("Set() on empty catalog should miss")
	}
	if c.Policies() != nil || c.Sets() != nil || c.Exemptions() != nil {
		t.Error("listings on empty catalog should be nil")
	}
	if c.Version() != "" {
		t.Errorf("Version() = %q, want empty", c.Version())
	}
	if _, err := c.Replace(nil, "memory", time.Now()); !errors.Is(err, ErrNilBundle) {
		t.Errorf("Replace(nil) error = %v, want ErrNilBundle", err)
	}
}

func TestCatalog_Replace(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCatalog()

	snap, err := c.Replace(parseAt(t, catalogBundle, at), "file:policies", at)
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if c.Snapshot() != snap {
		t.Error("Snapshot() does not return the installed snapshot")
	}

	policies := c.Policies()
	if len(policies) != 2 || policies[0].Name != "Algorithms" || policies[1].Name != "Key Size" {
		t.Errorf("Policies() not sorted by name: %v", policies)
	}
	p, ok := c.Policy("Key Size")
	if !ok {
		t.Fatal("Policy(Key Size) missing")
	}
	if byID, ok := c.Policy(p.ID.String()); !ok || byID != p {
		t.Error("Policy() by id did not find the same policy")
	}
	if _, ok := c.Set("PKI"); !ok {
		t.Error("Set(PKI) missing")
	}

	stats := c.Stats()
	want := CatalogStats{
		Version:    snap.Version,
		LoadedAt:   at,
		Source:     "file:policies",
		Policies:   2,
		Sets:       1,
		Exemptions: 1,
	}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
}

func TestFingerprint(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)

	reordered := `
policies:
  - name: Algorithms
    status: active
    rules:
      - id: allowed
        when: {field: algorithm, in: [RSA, ECDSA]}
  - name: Key Size
    status: active
    rules:
      - id: min-key-size
        when: {field: key_size, gte: 2048}
policy_sets:
  - name: PKI
    policies: [Key Size, Algorithms]
exemptions:
  - policy: Key Size
    reason: legacy HSM
    approved_by: ciso
    valid_from: 2026-01-01T00:00:00Z
    valid_until: 2026-06-30T00:00:00Z
`
	changed := `
policies:
  - name: Key Size
    status: active
    rules:
      - id: min-key-size
        when: {field: key_size, gte: 4096}
`

	base := Fingerprint(parseAt(t, catalogBundle, early))
	tests := []struct {
		name string
		got  string
		same bool
	}{
		{name: "reparsed later", got: Fingerprint(parseAt(t, catalogBundle, late)), same: true},
		{name: "reordered policies", got: Fingerprint(parseAt(t, reordered, early)), same: true},
		{name: "changed rule", got: Fingerprint(parseAt(t, changed, early)), same: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.got == base) != tt.same {
				t.Errorf("Fingerprint() = %s, base %s, want same = %v", tt.got, base, tt.same)
			}
		})
	}
	if len(base) != 16 {
		t.Errorf("Fingerprint() length = %d, want 16", len(base))
	}
}
