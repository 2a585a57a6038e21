package conflict

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/domain"
)

// ResolveConflicts orders policies according to the resolver's strategy.
// With no conflicts the policies are returned in their original order.
// The input slice is not modified.
func (r *Resolver) ResolveConflicts(policies []*domain.Policy, conflicts []domain.PolicyConflict) ([]*domain.Policy, error) {
	if len(policies) == 0 {
		return nil, ErrNoPolicies
	}
	out := slices.Clone(policies)
	if len(conflicts) == 0 {
		return out, nil
	}

	switch r.strategy {
	case domain.ResolveMostRestrictive:
		slices.SortStableFunc(out, func(a, b *domain.Policy) int {
			return cmp.Compare(b.EnforcementLevel, a.EnforcementLevel)
		})
	case domain.ResolveLeastRestrictive:
		slices.SortStableFunc(out, func(a, b *domain.Policy) int {
			return cmp.Compare(a.EnforcementLevel, b.EnforcementLevel)
		})
	case domain.ResolveFirstWins:
	case domain.ResolveLastWins:
		slices.Reverse(out)
	case domain.ResolveFailOnConflict:
		return nil, &IrreconcilableConflictError{Conflicts: len(conflicts)}
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrResolutionFailed, r.strategy)
	}

	r.logger.Debug("conflicts resolved",
		"strategy", r.strategy,
		"conflicts", len(conflicts),
	)
	return out, nil
}

// MergePolicies folds the rules of every policy into one Draft policy. The
// first policy supplies the target, enforcement level and metadata. A rule
// that conflicts with an already merged rule is handled by the strategy:
// MostRestrictive keeps the higher severity, LeastRestrictive the lower,
// FirstWins keeps the existing rule, LastWins drops the existing rule and
// appends the new one, and FailOnConflict returns an
// IrreconcilableConflictError. Identical rules are merged once.
func (r *Resolver) MergePolicies(policies []*domain.Policy) (*domain.Policy, error) {
	if len(policies) == 0 {
		return nil, ErrNoPolicies
	}

	merged := policies[0].Clone()
	merged.ID = uuid.New()
	merged.Name = fmt.Sprintf("Merged Policy Set (%d)", len(policies))
	merged.Description = "Automatically merged policy set"
	merged.Version = 1
	merged.Status = domain.StatusDraft
	merged.ParentPolicyID = nil
	merged.Revision = 0

	for _, policy := range policies[1:] {
		for _, rule := range policy.Rules {
			var err error
			if merged.Rules, err = r.mergeRule(merged.Rules, rule); err != nil {
				return nil, err
			}
		}
	}

	r.logger.Debug("policies merged",
		"policies", len(policies),
		"rules", len(merged.Rules),
	)
	return merged, nil
}

func (r *Resolver) mergeRule(rules []domain.Rule, rule domain.Rule) ([]domain.Rule, error) {
	conflictAt := -1
	for i, existing := range rules {
		if sameRule(existing, rule) {
			return rules, nil
		}
		if _, ok := RuleConflict(existing, rule); ok && conflictAt < 0 {
			conflictAt = i
		}
	}

	if conflictAt < 0 {
		return append(rules, uniqueID(rules, rule)), nil
	}

	existing := rules[conflictAt]
	others := slices.Delete(slices.Clone(rules), conflictAt, conflictAt+1)
	switch r.strategy {
	case domain.ResolveMostRestrictive:
		if rule.Severity > existing.Severity {
			rules[conflictAt] = uniqueID(others, rule)
		}
	case domain.ResolveLeastRestrictive:
		if rule.Severity < existing.Severity {
			rules[conflictAt] = uniqueID(others, rule)
		}
	case domain.ResolveFirstWins:
	case domain.ResolveLastWins:
		rules = append(others, uniqueID(others, rule))
	case domain.ResolveFailOnConflict:
		return nil, &IrreconcilableConflictError{
			Conflicts: 1,
			Detail:    fmt.Sprintf("cannot merge rule %q: conflicts with rule %q", rule.ID, existing.ID),
		}
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrResolutionFailed, r.strategy)
	}
	return rules, nil
}

func sameRule(a, b domain.Rule) bool {
	return a.ID == b.ID && a.Severity == b.Severity &&
		a.Expression != nil && b.Expression != nil &&
		a.Expression.String() == b.Expression.String()
}

// uniqueID suffixes the rule id when it collides with a merged rule.
func uniqueID(rules []domain.Rule, rule domain.Rule) domain.Rule {
	taken := func(id string) bool {
		return slices.ContainsFunc(rules, func(r domain.Rule) bool { return r.ID == id })
	}
	if !taken(rule.ID) {
		return rule
	}
	base := rule.ID
	for n := 2; ; n++ {
		id := fmt.Sprintf("%s-%d", base, n)
		if !taken(id) {
			rule.ID = id
			return rule
		}
	}
}
