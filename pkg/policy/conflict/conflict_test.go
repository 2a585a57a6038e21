package conflict

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
)

var detectedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rule(id string, expr ast.Expression, severity domain.Severity) domain.Rule {
	return domain.Rule{ID: id, Name: id, Expression: expr, Severity: severity}
}

func policy(name string, level domain.EnforcementLevel, target domain.Target, rules ...domain.Rule) *domain.Policy {
	p := domain.NewPolicy(uuid.New(), name, "", "alice", detectedAt)
	p.EnforcementLevel = level
	p.Target = target
	p.Rules = rules
	return p
}

func newResolver(strategy domain.ConflictResolution) *Resolver {
	return NewResolver(strategy, WithClock(func() time.Time { return detectedAt }))
}

func TestDetectConflicts_RegionContradiction(t *testing.T) {
	a := policy("US only", domain.EnforcementHard, domain.GlobalTarget(),
		rule("region-us", ast.Equal{Field: "region", Value: ast.String("US")}, domain.SeverityHigh))
	b := policy("EU only", domain.EnforcementHard, domain.GlobalTarget(),
		rule("region-eu", ast.Equal{Field: "region", Value: ast.String("EU")}, domain.SeverityHigh))

	conflicts := newResolver(domain.ResolveMostRestrictive).DetectConflicts([]*domain.Policy{a, b})
	if len(conflicts) != 1 {
		t.Fatalf("DetectConflicts() = %d conflicts, want 1", len(conflicts))
	}
	c := conflicts[0]
	if c.Type != domain.ConflictContradiction {
		t.Errorf("Type = %s, want contradiction", c.Type)
	}
	if c.PolicyIDs[0] != a.ID || c.PolicyIDs[1] != b.ID {
		t.Errorf("PolicyIDs = %v", c.PolicyIDs)
	}
	if c.RuleIDs[0] != "region-us" || c.RuleIDs[1] != "region-eu" {
		t.Errorf("RuleIDs = %v", c.RuleIDs)
	}
	if c.Resolution == nil || *c.Resolution != domain.ResolveMostRestrictive || !c.DetectedAt.Equal(detectedAt) {
		t.Errorf("conflict = %+v", c)
	}
	want := "Conflict between rule 'region-us' in policy 'US only' and rule 'region-eu' in policy 'EU only'"
	if c.Description != want {
		t.Errorf("Description = %q", c.Description)
	}
}

func TestRuleConflict(t *testing.T) {
	tests := []struct {
		name   string
		a, b   ast.Expression
		want   domain.ConflictType
		exists bool
	}{
		{"equal vs equal different", ast.Equal{Field: "f", Value: ast.Integer(1)}, ast.Equal{Field: "f", Value: ast.Integer(2)}, domain.ConflictContradiction, true},
		{"equal vs equal same", ast.Equal{Field: "f", Value: ast.Integer(1)}, ast.Equal{Field: "f", Value: ast.Integer(1)}, "", false},
		{"equal vs not equal", ast.Equal{Field: "f", Value: ast.String("x")}, ast.NotEqual{Field: "f", Value: ast.String("x")}, domain.ConflictContradiction, true},
		{"not equal vs equal", ast.NotEqual{Field: "f", Value: ast.String("x")}, ast.Equal{Field: "f", Value: ast.String("x")}, domain.ConflictContradiction, true},
		{"equal vs not equal other value", ast.Equal{Field: "f", Value: ast.String("x")}, ast.NotEqual{Field: "f", Value: ast.String("y")}, "", false},
		{"gt vs lte", ast.GreaterThan{Field: "f", Value: ast.Integer(10)}, ast.LessThanOrEqual{Field: "f", Value: ast.Integer(10)}, domain.ConflictContradiction, true},
		{"lte vs gt", ast.LessThanOrEqual{Field: "f", Value: ast.Integer(5)}, ast.GreaterThan{Field: "f", Value: ast.Integer(10)}, domain.ConflictContradiction, true},
		{"gt vs lte satisfiable", ast.GreaterThan{Field: "f", Value: ast.Integer(5)}, ast.LessThanOrEqual{Field: "f", Value: ast.Integer(10)}, "", false},
		{"gt vs lte unordered", ast.GreaterThan{Field: "f", Value: ast.Integer(5)}, ast.LessThanOrEqual{Field: "f", Value: ast.String("a")}, "", false},
		{"exists vs not exists", ast.Exists{Field: "f"}, ast.NotExists{Field: "f"}, domain.ConflictContradiction, true},
		{"in partial overlap", ast.In{Field: "f", Values: []ast.Value{ast.String("a"), ast.String("b")}}, ast.In{Field: "f", Values: []ast.Value{ast.String("b"), ast.String("c")}}, domain.ConflictOverlap, true},
		{"in subset", ast.In{Field: "f", Values: []ast.Value{ast.String("a")}}, ast.In{Field: "f", Values: []ast.Value{ast.String("a"), ast.String("b")}}, "", false},
		{"gt vs lt impossible", ast.GreaterThan{Field: "f", Value: ast.Integer(10)}, ast.LessThan{Field: "f", Value: ast.Integer(5)}, domain.ConflictImpossible, true},
		{"lt vs gt impossible", ast.LessThan{Field: "f", Value: ast.Float(5)}, ast.GreaterThan{Field: "f", Value: ast.Float(5)}, domain.ConflictImpossible, true},
		{"gt vs lt possible", ast.GreaterThan{Field: "f", Value: ast.Integer(1)}, ast.LessThan{Field: "f", Value: ast.Integer(5)}, "", false},
		{"no common field", ast.Equal{Field: "f", Value: ast.Integer(1)}, ast.Equal{Field: "g", Value: ast.Integer(2)}, "", false},
		{"nested shares field but not top level", ast.And{Children: []ast.Expression{ast.Equal{Field: "f", Value: ast.Integer(1)}}}, ast.Equal{Field: "f", Value: ast.Integer(2)}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RuleConflict(rule("a", tt.a, domain.SeverityLow), rule("b", tt.b, domain.SeverityLow))
			if ok != tt.exists || got != tt.want {
				t.Errorf("RuleConflict() = %q, %v; want %q, %v", got, ok, tt.want, tt.exists)
			}
		})
	}
}

func TestDetectConflicts_TargetPrefilter(t *testing.T) {
	org := uuid.New()
	contradicting := func(name string, target domain.Target, v string) *domain.Policy {
		return policy(name, domain.EnforcementHard, target,
			rule("r-"+name, ast.Equal{Field: "region", Value: ast.String(v)}, domain.SeverityHigh))
	}

	tests := []struct {
		name string
		a, b domain.Target
		want int
	}{
		{"global vs role", domain.GlobalTarget(), domain.RoleTarget("admin"), 1},
		{"same role", domain.RoleTarget("admin"), domain.RoleTarget("admin"), 1},
		{"different roles", domain.RoleTarget("admin"), domain.RoleTarget("auditor"), 0},
		{"different kinds", domain.RoleTarget("admin"), domain.OrganizationTarget(org), 0},
		{"composite member", domain.CompositeTarget(domain.RoleTarget("x"), domain.OrganizationTarget(org)), domain.OrganizationTarget(org), 1},
		{"composite disjoint", domain.CompositeTarget(domain.RoleTarget("x")), domain.ResourceTarget(domain.ResourceCertificate), 0},
	}
	r := newResolver(domain.ResolveFirstWins)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.DetectConflicts([]*domain.Policy{
				contradicting("a", tt.a, "US"),
				contradicting("b", tt.b, "EU"),
			})
			if len(got) != tt.want {
				t.Errorf("DetectConflicts() = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDetectConflicts_FirstRulePairWins(t *testing.T) {
	a := policy("a", domain.EnforcementHard, domain.GlobalTarget(),
		rule("a1", ast.Exists{Field: "owner"}, domain.SeverityLow),
		rule("a2", ast.GreaterThan{Field: "n", Value: ast.Integer(10)}, domain.SeverityLow),
	)
	b := policy("b", domain.EnforcementHard, domain.GlobalTarget(),
		rule("b1", ast.LessThan{Field: "n", Value: ast.Integer(5)}, domain.SeverityLow),
		rule("b2", ast.NotExists{Field: "owner"}, domain.SeverityLow),
	)
	c := policy("c", domain.EnforcementHard, domain.GlobalTarget())

	conflicts := newResolver(domain.ResolveFirstWins).DetectConflicts([]*domain.Policy{a, b, c})
	if len(conflicts) != 1 {
		t.Fatalf("DetectConflicts() = %d, want 1", len(conflicts))
	}
	if conflicts[0].Type != domain.ConflictContradiction || conflicts[0].RuleIDs[0] != "a1" || conflicts[0].RuleIDs[1] != "b2" {
		t.Errorf("conflict = %+v", conflicts[0])
	}
}

func conflictingPolicies() []*domain.Policy {
	return []*domain.Policy{
		policy("soft", domain.EnforcementSoft, domain.GlobalTarget(),
			rule("region", ast.Equal{Field: "region", Value: ast.String("US")}, domain.SeverityMedium)),
		policy("critical", domain.EnforcementCritical, domain.GlobalTarget(),
			rule("region", ast.Equal{Field: "region", Value: ast.String("EU")}, domain.SeverityCritical)),
		policy("advisory", domain.EnforcementAdvisory, domain.GlobalTarget(),
			rule("region", ast.Equal{Field: "region", Value: ast.String("APAC")}, domain.SeverityLow)),
	}
}

func TestResolveConflicts(t *testing.T) {
	policies := conflictingPolicies()
	names := func(ps []*domain.Policy) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Name
		}
		return out
	}

	tests := []struct {
		strategy domain.ConflictResolution
		want     []string
	}{
		{domain.ResolveMostRestrictive, []string{"critical", "soft", "advisory"}},
		{domain.ResolveLeastRestrictive, []string{"advisory", "soft", "critical"}},
		{domain.ResolveFirstWins, []string{"soft", "critical", "advisory"}},
		{domain.ResolveLastWins, []string{"advisory", "critical", "soft"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			r := newResolver(tt.strategy)
			resolved, err := r.ResolveConflicts(policies, r.DetectConflicts(policies))
			if err != nil {
				t.Fatal(err)
			}
			got := names(resolved)
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("order = %v, want %v", got, tt.want)
				}
			}
		})
	}

	if got := names(policies); got[0] != "soft" || got[2] != "advisory" {
		t.Errorf("input reordered: %v", got)
	}
}

func TestResolveConflicts_Errors(t *testing.T) {
	policies := conflictingPolicies()

	r := newResolver(domain.ResolveFailOnConflict)
	_, err := r.ResolveConflicts(policies, r.DetectConflicts(policies))
	if !errors.Is(err, ErrIrreconcilableConflict) {
		t.Fatalf("error = %v, want ErrIrreconcilableConflict", err)
	}
	var irreconcilable *IrreconcilableConflictError
	if !errors.As(err, &irreconcilable) || irreconcilable.Conflicts != 3 {
		t.Errorf("IrreconcilableConflictError = %+v", irreconcilable)
	}

	// No conflicts: even FailOnConflict passes policies through.
	if out, err := r.ResolveConflicts(policies, nil); err != nil || len(out) != 3 {
		t.Errorf("ResolveConflicts(no conflicts) = %d, %v", len(out), err)
	}

	if _, err := r.ResolveConflicts(nil, nil); !errors.Is(err, ErrNoPolicies) {
		t.Errorf("ResolveConflicts(nil) error = %v, want ErrNoPolicies", err)
	}

	unknown := newResolver("coin_flip")
	if _, err := unknown.ResolveConflicts(policies, unknown.DetectConflicts(policies)); !errors.Is(err, ErrResolutionFailed) {
		t.Errorf("unknown strategy error = %v, want ErrResolutionFailed", err)
	}
}

func TestMergePolicies(t *testing.T) {
	tests := []struct {
		strategy   domain.ConflictResolution
		wantRegion string
		wantRules  int
	}{
		{domain.ResolveMostRestrictive, "EU", 2},
		{domain.ResolveLeastRestrictive, "APAC", 2},
		{domain.ResolveFirstWins, "US", 2},
		{domain.ResolveLastWins, "APAC", 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			policies := conflictingPolicies()
			policies[1].Rules = append(policies[1].Rules, domain.MinKeySize(2048))
			// An identical rule in a later policy is merged once.
			policies[2].Rules = append(policies[2].Rules, domain.MinKeySize(2048))

			merged, err := newResolver(tt.strategy).MergePolicies(policies)
			if err != nil {
				t.Fatal(err)
			}
			if merged.ID == policies[0].ID || merged.Status != domain.StatusDraft {
				t.Errorf("merged = %+v", merged)
			}
			if merged.Name != "Merged Policy Set (3)" {
				t.Errorf("Name = %q", merged.Name)
			}
			if len(merged.Rules) != tt.wantRules {
				t.Fatalf("Rules = %+v", merged.Rules)
			}

			var region string
			for _, r := range merged.Rules {
				if eq, ok := r.Expression.(ast.Equal); ok && eq.Field == "region" {
					region = string(eq.Value.(ast.String))
				}
			}
			if region != tt.wantRegion {
				t.Errorf("region rule = %q, want %q", region, tt.wantRegion)
			}
			if err := merged.Validate(); err != nil {
				t.Errorf("merged policy invalid: %v", err)
			}
		})
	}
}

func TestMergePolicies_Errors(t *testing.T) {
	if _, err := newResolver(domain.ResolveFirstWins).MergePolicies(nil); !errors.Is(err, ErrNoPolicies) {
		t.Errorf("MergePolicies(nil) error = %v, want ErrNoPolicies", err)
	}
	if _, err := newResolver(domain.ResolveFailOnConflict).MergePolicies(conflictingPolicies()); !errors.Is(err, ErrIrreconcilableConflict) {
		t.Errorf("MergePolicies() error = %v, want ErrIrreconcilableConflict", err)
	}
}

func TestMergePolicies_RenamesCollidingIDs(t *testing.T) {
	a := policy("a", domain.EnforcementHard, domain.GlobalTarget(),
		rule("size", ast.GreaterThanOrEqual{Field: "key_size", Value: ast.Integer(2048)}, domain.SeverityHigh))
	b := policy("b", domain.EnforcementHard, domain.GlobalTarget(),
		rule("size", ast.LessThanOrEqual{Field: "key_size", Value: ast.Integer(8192)}, domain.SeverityHigh))

	merged, err := newResolver(domain.ResolveFirstWins).MergePolicies([]*domain.Policy{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if len(merged.Rules) != 2 || merged.Rules[1].ID != "size-2" {
		t.Errorf("Rules = %+v", merged.Rules)
	}
}

type countingRecorder map[domain.ConflictType]int

func (c countingRecorder) RecordConflict(t domain.ConflictType) { c[t]++ }

func TestDetectConflicts_Recorder(t *testing.T) {
	rec := countingRecorder{}
	r := NewResolver(domain.ResolveFirstWins, WithRecorder(rec))
	r.DetectConflicts(conflictingPolicies())
	if rec[domain.ConflictContradiction] != 3 {
		t.Errorf("recorded = %v", rec)
	}
}
