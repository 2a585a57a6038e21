package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/tribune/pkg/policy/domain"
)

const tracerName = "mercator-hq/tribune/policy/engine"

// Recorder receives evaluation measurements. The metrics collector
// implements it.
type Recorder interface {
	RecordEvaluation(policyID string, outcome domain.Outcome, duration time.Duration)
	RecordRule(policyID, ruleID string, passed bool)
	RecordEvaluationError(policyID string, reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordEvaluation(string, domain.Outcome, time.Duration) {}
func (nopRecorder) RecordRule(string, string, bool)                        {}
func (nopRecorder) RecordEvaluationError(string, string)                   {}

// Evaluator evaluates policies and policy sets. It holds the exemptions
// registered for each policy.
type Evaluator struct {
	rules    *RuleEvaluator
	clock    func() time.Time
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer

	// exemptionsMu protects exemptions for concurrent reload
	exemptionsMu sync.RWMutex
	exemptions   map[uuid.UUID][]*domain.Exemption
}

// Option configures an Evaluator.
type Option func(*evaluatorOptions)

type evaluatorOptions struct {
	predicates *PredicateRegistry
	clock      func() time.Time
	logger     *slog.Logger
	recorder   Recorder
	tracer     trace.Tracer
}

// WithPredicates sets the custom predicate registry.
func WithPredicates(r *PredicateRegistry) Option {
	return func(o *evaluatorOptions) { o.predicates = r }
}

// WithClock sets the time source used for effectiveness and exemption
// validity checks.
func WithClock(clock func() time.Time) Option {
	return func(o *evaluatorOptions) { o.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *evaluatorOptions) { o.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *evaluatorOptions) { o.recorder = r }
}

// WithTracer sets the tracer. The global OpenTelemetry tracer is used by
// default.
func WithTracer(t trace.Tracer) Option {
	return func(o *evaluatorOptions) { o.tracer = t }
}

// NewEvaluator creates an evaluator with no registered exemptions.
func NewEvaluator(opts ...Option) *Evaluator {
	o := evaluatorOptions{
		clock:    time.Now,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "policy.engine")
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	return &Evaluator{
		rules:      NewRuleEvaluator(o.predicates, o.logger),
		clock:      o.clock,
		logger:     o.logger,
		recorder:   o.recorder,
		tracer:     o.tracer,
		exemptions: make(map[uuid.UUID][]*domain.Exemption),
	}
}

// Rules returns the underlying rule evaluator.
func (e *Evaluator) Rules() *RuleEvaluator {
	return e.rules
}

// RegisterExemptions adds exemptions, keyed by policy id. Exemptions that
// are not valid now are skipped. It returns the number registered.
func (e *Evaluator) RegisterExemptions(exemptions ...*domain.Exemption) int {
	now := e.clock()

	e.exemptionsMu.Lock()
	defer e.exemptionsMu.Unlock()

	registered := 0
	for _, x := range exemptions {
		if x == nil || !x.IsValid(now) {
			continue
		}
		e.exemptions[x.PolicyID] = append(e.exemptions[x.PolicyID], x.Clone())
		registered++
	}
	return registered
}

// ReplaceExemptions drops every registered exemption and registers the
// given ones.
func (e *Evaluator) ReplaceExemptions(exemptions ...*domain.Exemption) int {
	e.exemptionsMu.Lock()
	e.exemptions = make(map[uuid.UUID][]*domain.Exemption)
	e.exemptionsMu.Unlock()
	return e.RegisterExemptions(exemptions...)
}

// Exemptions returns the exemptions registered for a policy.
func (e *Evaluator) Exemptions(policyID uuid.UUID) []*domain.Exemption {
	e.exemptionsMu.RLock()
	defer e.exemptionsMu.RUnlock()
	return append([]*domain.Exemption(nil), e.exemptions[policyID]...)
}

// Evaluate runs every rule of policy against evalCtx.
//
// A policy that is not effective is refused with ErrPolicyNotActive. A valid
// exemption whose scope and conditions match evalCtx short-circuits to
// CompliantWithExemption. Otherwise all rules are evaluated in order; any
// failure makes the result NonCompliant. A rule that cannot be evaluated
// aborts the call with an EvaluationError.
func (e *Evaluator) Evaluate(ctx context.Context, policy *domain.Policy, evalCtx domain.Context) (*domain.PolicyEvaluation, error) {
	ctx, span := e.tracer.Start(ctx, "policy.evaluate", trace.WithAttributes(
		attribute.String("policy.id", policy.ID.String()),
		attribute.String("policy.name", policy.Name),
		attribute.Int("policy.rules", len(policy.Rules)),
	))
	defer span.End()

	start := time.Now()
	now := e.clock()
	policyID := policy.ID.String()

	if !policy.IsEffective(now) {
		err := fmt.Errorf("%w: policy %s is %s", ErrPolicyNotActive, policy.ID, policy.Status)
		e.recorder.RecordEvaluationError(policyID, "not_active")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	evaluation := &domain.PolicyEvaluation{
		ID:            uuid.New(),
		PolicyID:      policy.ID,
		PolicyVersion: policy.Version,
		EvaluatedAt:   now,
	}

	if x := e.matchingExemption(policy.ID, evalCtx, now); x != nil {
		e.logger.DebugContext(ctx, "exemption applied",
			"policy_id", policyID,
			"exemption_id", x.ID,
		)
		evaluation.Result = domain.CompliantWithExemption{ExemptionID: x.ID}
		evaluation.ExecutionTime = time.Since(start)
		e.finish(span, evaluation)
		return evaluation, nil
	}

	var violations []domain.Violation
	for _, rule := range policy.Rules {
		passed, err := e.rules.Evaluate(rule.Expression, evalCtx)
		if err != nil {
			e.recorder.RecordEvaluationError(policyID, "rule_error")
			span.RecordError(err)
			span.SetStatus(codes.Error, "rule evaluation failed")
			return nil, &EvaluationError{PolicyID: policy.ID, RuleID: rule.ID, Cause: err}
		}

		e.recorder.RecordRule(policyID, rule.ID, passed)
		result := domain.RuleResult{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Passed:   passed,
			Message:  ruleMessage(rule, passed),
			Severity: rule.Severity,
		}
		evaluation.RuleResults = append(evaluation.RuleResults, result)

		if !passed {
			violations = append(violations, domain.Violation{
				PolicyID:        policy.ID,
				RuleID:          rule.ID,
				RuleDescription: ruleDescription(rule),
				Severity:        rule.Severity,
				Details:         result.Message,
				Remediation:     rule.Remediation,
			})
		}
	}

	if len(violations) > 0 {
		evaluation.Result = domain.NonCompliant{Violations: violations}
	} else {
		evaluation.Result = domain.Compliant{}
	}
	evaluation.ExecutionTime = time.Since(start)

	e.logger.DebugContext(ctx, "policy evaluated",
		"policy_id", policyID,
		"outcome", evaluation.Result.Outcome(),
		"violations", len(violations),
		"duration", evaluation.ExecutionTime,
	)
	e.finish(span, evaluation)
	return evaluation, nil
}

func (e *Evaluator) finish(span trace.Span, evaluation *domain.PolicyEvaluation) {
	outcome := evaluation.Result.Outcome()
	span.SetAttributes(attribute.String("policy.outcome", string(outcome)))
	e.recorder.RecordEvaluation(evaluation.PolicyID.String(), outcome, evaluation.ExecutionTime)
}

// matchingExemption returns the first registered exemption for policyID that
// is valid at now and applies to evalCtx.
func (e *Evaluator) matchingExemption(policyID uuid.UUID, evalCtx domain.Context, now time.Time) *domain.Exemption {
	e.exemptionsMu.RLock()
	defer e.exemptionsMu.RUnlock()

	for _, x := range e.exemptions[policyID] {
		if x.IsValid(now) && x.Applies(evalCtx) {
			return x
		}
	}
	return nil
}

func ruleMessage(rule domain.Rule, passed bool) string {
	if passed {
		return fmt.Sprintf("Rule '%s' passed", rule.Name)
	}
	if rule.ErrorMessage != "" {
		return rule.ErrorMessage
	}
	return fmt.Sprintf("Rule '%s' failed", rule.Name)
}

func ruleDescription(rule domain.Rule) string {
	if rule.Description != "" {
		return rule.Description
	}
	return rule.Name
}
