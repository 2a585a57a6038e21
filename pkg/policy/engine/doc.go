// Package engine evaluates policies against evaluation contexts.
//
// The engine has two layers:
//
//  1. RuleEvaluator - interprets one rule expression against one Context
//  2. Evaluator - runs every rule of a policy, applies exemptions and
//     composes results across several policies
//
// # Evaluation Flow
//
//	Policy + Context
//	       ↓
//	Policy effective at now?            no → ErrPolicyNotActive
//	       ↓
//	Valid exemption for the policy that
//	matches the context?                yes → CompliantWithExemption
//	       ↓
//	For each rule, in order:
//	  evaluate expression → record RuleResult
//	  failed → add Violation
//	       ↓
//	Compliant or NonCompliant{violations}
//
// Every rule is evaluated even after a failure so the report is complete.
// A missing context field is not a failure: it aborts the whole call with a
// MissingFieldError.
//
// # Comparisons
//
// Ordering predicates only order values of the same kind (integer/integer,
// float/float, string/string). Across kinds GreaterThan and LessThan are
// false, and the OrEqual variants fall back to equality. Contains, Matches,
// StartsWith and EndsWith are false for operands of the wrong kind.
//
// # Custom Predicates
//
// Custom expressions are resolved by name in a PredicateRegistry supplied by
// the host application. No predicates are built in; an unregistered name
// fails with ErrRuleEvaluationFailed.
//
//	registry := engine.NewPredicateRegistry()
//	registry.Register("business_hours", func(args ast.Map, ctx domain.Context) (bool, error) {
//	    hour := ctx.Timestamp.Hour()
//	    return hour >= 9 && hour < 17, nil
//	})
//	eval := engine.NewEvaluator(engine.WithPredicates(registry))
//
// # Thread Safety
//
// Evaluator is safe for concurrent use. Registered exemptions are replaced
// atomically under a RWMutex.
package engine
