// Package conflict detects and resolves contradictions between policies.
//
// # Detection
//
// DetectConflicts examines every unordered pair of policies. A pair is only
// analyzed when the policy targets overlap; within such a pair every rule of
// the first policy is compared with every rule of the second, and rules are
// only compared when they reference a common context field. The first
// conflicting rule pair decides the conflict recorded for the policy pair.
//
// Three kinds of conflict are recognized:
//
//   - Contradiction: equal on different values, equal versus not-equal on
//     the same value, greater-than x versus less-or-equal y with x >= y, and
//     exists versus not-exists on the same field.
//   - Overlap: two "in" rules on the same field whose value sets are not
//     subsets of each other.
//   - Impossible: greater-than x versus less-than y with x >= y.
//
// Checks are symmetric: the order of the two rules does not matter.
//
// # Resolution
//
// ResolveConflicts orders policies by the resolver's strategy, and
// MergePolicies folds the rules of several policies into one. The
// FailOnConflict strategy surfaces any conflict as an
// IrreconcilableConflictError.
package conflict
