package engine

import (
	"fmt"
	"log/slog"

	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
)

// RuleEvaluator interprets rule expressions against evaluation contexts.
type RuleEvaluator struct {
	predicates *PredicateRegistry
	patterns   *patternCache
	logger     *slog.Logger
}

// NewRuleEvaluator creates a rule evaluator. predicates may be nil, in which
// case every custom predicate is unregistered.
func NewRuleEvaluator(predicates *PredicateRegistry, logger *slog.Logger) *RuleEvaluator {
	if logger == nil {
		logger = slog.Default().With("component", "policy.engine")
	}
	return &RuleEvaluator{
		predicates: predicates,
		patterns:   newPatternCache(),
		logger:     logger,
	}
}

// Evaluate reports whether expr holds for ctx.
func (r *RuleEvaluator) Evaluate(expr ast.Expression, ctx domain.Context) (bool, error) {
	switch e := expr.(type) {
	case ast.Equal:
		return r.compare(e.Field, ctx, func(actual ast.Value) bool { return ast.ValuesEqual(actual, e.Value) })
	case ast.NotEqual:
		return r.compare(e.Field, ctx, func(actual ast.Value) bool { return !ast.ValuesEqual(actual, e.Value) })
	case ast.GreaterThan:
		return r.compare(e.Field, ctx, func(actual ast.Value) bool { return greater(actual, e.Value) })
	case ast.GreaterThanOrEqual:
		return r.compare(e.Field, ctx, func(actual ast.Value) bool { return greaterOrEqual(actual, e.Value) })
	case ast.LessThan:
		return r.compare(e.Field, ctx, func(actual ast.Value) bool { return greater(e.Value, actual) })
	case ast.LessThanOrEqual:
		return r.compare(e.Field, ctx, func(actual ast.Value) bool { return greaterOrEqual(e.Value, actual) })

	case ast.And:
		for _, child := range e.Children {
			ok, err := r.Evaluate(child, ctx)
			if err != nil {
				return false, err
			}
			// Short-circuit: first false child decides
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case ast.Or:
		for _, child := range e.Children {
			ok, err := r.Evaluate(child, ctx)
			if err != nil {
				return false, err
			}
			// Short-circuit: first true child decides
			if ok {
				return true, nil
			}
		}
		return false, nil

	case ast.Not:
		ok, err := r.Evaluate(e.Child, ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case ast.In:
		return r.compare(e.Field, ctx, func(actual ast.Value) bool { return ast.ListContains(e.Values, actual) })
	case ast.NotIn:
		return r.compare(e.Field, ctx, func(actual ast.Value) bool { return !ast.ListContains(e.Values, actual) })
	case ast.Contains:
		return r.compare(e.Field, ctx, func(actual ast.Value) bool { return contains(actual, e.Value) })

	case ast.Matches:
		actual, err := r.field(e.Field, ctx)
		if err != nil {
			return false, err
		}
		s, ok := actual.(ast.String)
		if !ok {
			return false, nil
		}
		re, err := r.patterns.compile(e.Pattern)
		if err != nil {
			return false, &RuleEvaluationError{Op: ast.OpMatches, Detail: fmt.Sprintf("invalid pattern %q", e.Pattern), Cause: err}
		}
		return re.MatchString(string(s)), nil

	case ast.StartsWith:
		return r.compare(e.Field, ctx, func(actual ast.Value) bool { return hasPrefix(actual, e.Prefix) })
	case ast.EndsWith:
		return r.compare(e.Field, ctx, func(actual ast.Value) bool { return hasSuffix(actual, e.Suffix) })

	case ast.Exists:
		_, ok := ctx.Get(e.Field)
		return ok, nil
	case ast.NotExists:
		_, ok := ctx.Get(e.Field)
		return !ok, nil

	case ast.Custom:
		return r.custom(e, ctx)

	default:
		return false, fmt.Errorf("%w: %T", ErrUnsupportedExpression, expr)
	}
}

// field looks up a context field, reporting absence as MissingFieldError.
func (r *RuleEvaluator) field(name string, ctx domain.Context) (ast.Value, error) {
	v, ok := ctx.Get(name)
	if !ok {
		r.logger.Debug("context field missing", "field", name)
		return nil, &MissingFieldError{Field: name}
	}
	return v, nil
}

func (r *RuleEvaluator) compare(name string, ctx domain.Context, pred func(ast.Value) bool) (bool, error) {
	actual, err := r.field(name, ctx)
	if err != nil {
		return false, err
	}
	return pred(actual), nil
}

func (r *RuleEvaluator) custom(e ast.Custom, ctx domain.Context) (bool, error) {
	fn, ok := r.predicates.Lookup(e.Predicate)
	if !ok {
		return false, &RuleEvaluationError{Op: ast.OpCustom, Detail: fmt.Sprintf("predicate %q is not registered", e.Predicate)}
	}
	matched, err := fn(e.Args, ctx)
	if err != nil {
		return false, &RuleEvaluationError{Op: ast.OpCustom, Detail: fmt.Sprintf("predicate %q", e.Predicate), Cause: err}
	}
	r.logger.Debug("custom predicate evaluated", "predicate", e.Predicate, "matched", matched)
	return matched, nil
}
