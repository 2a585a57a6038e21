package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mercator-hq/tribune/pkg/cli"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/engine"
	"mercator-hq/tribune/pkg/policy/parser"
)

var evaluateFlags struct {
	bundle  string
	context string
	set     string
	policy  string
	at      string
	format  string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a bundle against a context",
	Long: `Evaluate the policies of a bundle against a context document.

Without --set or --policy every effective policy in the bundle is evaluated
and policies that are not active are listed as skipped. With --set the members
of the named policy set are evaluated and composed with the set's composition
rule. Exemptions in the bundle apply to matching contexts.

The command exits with status 3 when the result is not compliant.

Examples:
  # Evaluate every active policy
  tribune evaluate --bundle policies/ --context request.yaml

  # Evaluate one policy set
  tribune evaluate --bundle policies/ --context request.yaml --set "Certificate Baseline"

  # Evaluate as of a point in time (exemption windows, effective dates)
  tribune evaluate --bundle policies/ --context request.yaml --at 2026-03-01T00:00:00Z`,
	RunE: evaluateBundle,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&evaluateFlags.bundle, "bundle", "b", "", "bundle file or directory")
	evaluateCmd.Flags().StringVar(&evaluateFlags.context, "context", "", "context document (YAML)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.set, "set", "", "policy set name or id")
	evaluateCmd.Flags().StringVar(&evaluateFlags.policy, "policy", "", "single policy name or id")
	evaluateCmd.Flags().StringVar(&evaluateFlags.at, "at", "", "evaluation time (RFC 3339, default now)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.format, "format", "text", "output format: text, json, yaml")
}

// EvaluationReport is the result of the evaluate command.
type EvaluationReport struct {
	Context     string         `json:"context" yaml:"context"`
	Set         string         `json:"set,omitempty" yaml:"set,omitempty"`
	Composition string         `json:"composition,omitempty" yaml:"composition,omitempty"`
	Outcome     domain.Outcome `json:"outcome" yaml:"outcome"`
	Compliant   bool           `json:"compliant" yaml:"compliant"`
	Policies    []PolicyReport `json:"policies" yaml:"policies"`
	Skipped     []string       `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// PolicyReport is the evaluation of one policy.
type PolicyReport struct {
	Policy      string              `json:"policy" yaml:"policy"`
	PolicyID    uuid.UUID           `json:"policy_id" yaml:"policy_id"`
	Outcome     domain.Outcome      `json:"outcome" yaml:"outcome"`
	ExemptionID *uuid.UUID          `json:"exemption_id,omitempty" yaml:"exemption_id,omitempty"`
	Rules       []domain.RuleResult `json:"rules,omitempty" yaml:"rules,omitempty"`
	Violations  []domain.Violation  `json:"violations,omitempty" yaml:"violations,omitempty"`
	Duration    time.Duration       `json:"duration_ns" yaml:"duration"`
}

func evaluateBundle(cmd *cobra.Command, args []string) error {
	if evaluateFlags.context == "" {
		return cli.NewConfigError("--context", "a context document is required")
	}
	if evaluateFlags.set != "" && evaluateFlags.policy != "" {
		return cli.NewConfigError("--set", "--set and --policy are mutually exclusive")
	}
	now := time.Now
	if evaluateFlags.at != "" {
		at, err := time.Parse(time.RFC3339, evaluateFlags.at)
		if err != nil {
			return cli.NewConfigError("--at", err.Error())
		}
		now = func() time.Time { return at }
	}

	bundle, err := parseBundle(evaluateFlags.bundle)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	evalCtx, err := parser.NewParser().WithClock(now).ParseContextFile(evaluateFlags.context)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	evaluator := engine.NewEvaluator(engine.WithClock(now))
	evaluator.RegisterExemptions(bundle.Exemptions...)

	report, err := evaluate(cmdContext(cmd), evaluator, bundle, evalCtx, now())
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	report.Context = evaluateFlags.context

	if err := printResult(evaluateFlags.format, report); err != nil {
		return err
	}
	if !report.Compliant {
		return cli.NonCompliant("evaluation outcome: %s", report.Outcome)
	}
	return nil
}

func evaluate(ctx context.Context, evaluator *engine.Evaluator, bundle *parser.Bundle, evalCtx domain.Context, now time.Time) (*EvaluationReport, error) {
	report := &EvaluationReport{}

	if evaluateFlags.set != "" {
		set, ok := bundle.Set(evaluateFlags.set)
		if !ok {
			return nil, fmt.Errorf("policy set %q not found in bundle", evaluateFlags.set)
		}
		members := bundle.Members(set)
		result, err := evaluator.EvaluateSetDetailed(ctx, members, evalCtx, set.Composition)
		if err != nil {
			return nil, err
		}
		for i, evaluation := range result.Members {
			report.Policies = append(report.Policies, policyReport(members[i], evaluation))
		}
		report.Set = set.Name
		report.Composition = set.Composition.String()
		report.Outcome = result.Summary().Outcome()
		report.Compliant = domain.IsCompliant(result.Result)
		return report, nil
	}

	policies := bundle.Policies
	if evaluateFlags.policy != "" {
		policy, ok := bundle.Policy(evaluateFlags.policy)
		if !ok {
			return nil, fmt.Errorf("policy %q not found in bundle", evaluateFlags.policy)
		}
		policies = []*domain.Policy{policy}
	}

	passed := 0
	for _, policy := range policies {
		if !policy.IsEffective(now) {
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s (%s)", policy.Name, policy.Status))
			continue
		}
		evaluation, err := evaluator.Evaluate(ctx, policy, evalCtx)
		if err != nil {
			return nil, err
		}
		if domain.IsCompliant(evaluation.Result) {
			passed++
		}
		report.Policies = append(report.Policies, policyReport(policy, evaluation))
	}
	if len(report.Policies) == 0 {
		return nil, fmt.Errorf("no effective policies to evaluate (%d skipped)", len(report.Skipped))
	}

	switch {
	case passed == len(report.Policies):
		report.Outcome = domain.OutcomeCompliant
		report.Compliant = true
	case passed == 0:
		report.Outcome = domain.OutcomeNonCompliant
	default:
		report.Outcome = domain.OutcomePartiallyCompliant
	}
	return report, nil
}

func policyReport(policy *domain.Policy, evaluation *domain.PolicyEvaluation) PolicyReport {
	pr := PolicyReport{
		Policy:     policy.Name,
		PolicyID:   policy.ID,
		Outcome:    evaluation.Result.Outcome(),
		Rules:      evaluation.RuleResults,
		Violations: domain.ViolationsOf(evaluation.Result),
		Duration:   evaluation.ExecutionTime,
	}
	if exempt, ok := evaluation.Result.(domain.CompliantWithExemption); ok {
		pr.ExemptionID = &exempt.ExemptionID
	}
	return pr
}

// RenderText prints the report for a terminal.
func (r *EvaluationReport) RenderText(w io.Writer) error {
	if r.Set != "" {
		fmt.Fprintf(w, "Policy set %s (%s)\n", r.Set, r.Composition)
	}
	for _, p := range r.Policies {
		mark := "✓"
		if p.Outcome == domain.OutcomeNonCompliant {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark, p.Policy, p.Outcome)
		if p.ExemptionID != nil {
			fmt.Fprintf(w, "    exemption %s applied\n", p.ExemptionID)
		}
		for _, v := range p.Violations {
			fmt.Fprintf(w, "    [%s] %s: %s\n", v.Severity, v.RuleID, v.Details)
			if v.Remediation != "" {
				fmt.Fprintf(w, "      remediation: %s\n", v.Remediation)
			}
		}
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "- %s: skipped\n", s)
	}
	fmt.Fprintln(w)
	_, err := fmt.Fprintf(w, "Outcome: %s\n", r.Outcome)
	return err
}

// cmdContext returns the command's context, or a background context when
// the run function is called directly.
func cmdContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
