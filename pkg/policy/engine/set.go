package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/tribune/pkg/policy/domain"
)

// SetEvaluation is the detailed outcome of evaluating several policies under
// one composition rule.
type SetEvaluation struct {
	Composition domain.CompositionRule
	Members     []*domain.PolicyEvaluation
	Compliant   int
	Total       int

	// Result is the composed outcome: Compliant when the composition rule
	// is satisfied, otherwise NonCompliant with every member's violations.
	Result domain.ComplianceResult
}

// Summary reports PartiallyCompliant when some but not all members passed,
// and Result otherwise.
func (s *SetEvaluation) Summary() domain.ComplianceResult {
	if s.Compliant > 0 && s.Compliant < s.Total {
		return domain.PartiallyCompliant{Passed: s.Compliant, Failed: s.Total - s.Compliant}
	}
	return s.Result
}

// EvaluateSet evaluates each policy and composes the per-policy outcomes
// with composition. Violations of non-compliant members are concatenated.
// An error from any member aborts the call.
func (e *Evaluator) EvaluateSet(ctx context.Context, policies []*domain.Policy, evalCtx domain.Context, composition domain.CompositionRule) (domain.ComplianceResult, error) {
	detailed, err := e.EvaluateSetDetailed(ctx, policies, evalCtx, composition)
	if err != nil {
		return nil, err
	}
	return detailed.Result, nil
}

// EvaluateSetDetailed is EvaluateSet returning every member evaluation.
func (e *Evaluator) EvaluateSetDetailed(ctx context.Context, policies []*domain.Policy, evalCtx domain.Context, composition domain.CompositionRule) (*SetEvaluation, error) {
	ctx, span := e.tracer.Start(ctx, "policy.evaluate_set", trace.WithAttributes(
		attribute.String("composition", composition.String()),
		attribute.Int("policies", len(policies)),
	))
	defer span.End()

	out := &SetEvaluation{
		Composition: composition,
		Members:     make([]*domain.PolicyEvaluation, 0, len(policies)),
		Total:       len(policies),
	}

	var violations []domain.Violation
	for _, policy := range policies {
		evaluation, err := e.Evaluate(ctx, policy, evalCtx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		out.Members = append(out.Members, evaluation)

		if domain.IsCompliant(evaluation.Result) {
			out.Compliant++
		} else {
			violations = append(violations, domain.ViolationsOf(evaluation.Result)...)
		}
	}

	if composition.Satisfied(out.Compliant, out.Total) {
		out.Result = domain.Compliant{}
	} else {
		out.Result = domain.NonCompliant{Violations: violations}
	}

	span.SetAttributes(
		attribute.Int("compliant", out.Compliant),
		attribute.String("set.outcome", string(out.Result.Outcome())),
	)
	return out, nil
}
