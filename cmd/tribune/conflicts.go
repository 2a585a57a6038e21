package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/tribune/pkg/cli"
	"mercator-hq/tribune/pkg/policy/conflict"
	"mercator-hq/tribune/pkg/policy/domain"
)

var conflictsFlags struct {
	bundle   string
	set      string
	strategy string
	merge    bool
	format   string
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Detect and resolve conflicts between policies",
	Long: `Detect contradicting rules between the policies of a bundle and resolve them.

The resolved order lists the policies in the order the strategy applies them.
With --merge the rules of every policy are folded into one policy.

Strategies:
  most_restrictive   higher enforcement level first (default)
  least_restrictive  lower enforcement level first
  first_wins         bundle order
  last_wins          reverse bundle order
  fail_on_conflict   refuse to resolve any conflict (exit status 3)

Examples:
  # Conflicts across the whole bundle
  tribune conflicts --bundle policies/

  # Conflicts between the members of one set, using the set's strategy
  tribune conflicts --bundle policies/ --set "Certificate Baseline"

  # Override the strategy and show the merged rules
  tribune conflicts --bundle policies/ --strategy last_wins --merge`,
	RunE: detectConflicts,
}

func init() {
	rootCmd.AddCommand(conflictsCmd)

	conflictsCmd.Flags().StringVarP(&conflictsFlags.bundle, "bundle", "b", "", "bundle file or directory")
	conflictsCmd.Flags().StringVar(&conflictsFlags.set, "set", "", "restrict to the members of a policy set")
	conflictsCmd.Flags().StringVar(&conflictsFlags.strategy, "strategy", "", "resolution strategy (default: the set's, else most_restrictive)")
	conflictsCmd.Flags().BoolVar(&conflictsFlags.merge, "merge", false, "merge the rules of the resolved policies")
	conflictsCmd.Flags().StringVar(&conflictsFlags.format, "format", "text", "output format: text, json, yaml")
}

// ConflictReport is the result of the conflicts command.
type ConflictReport struct {
	Strategy    domain.ConflictResolution `json:"strategy" yaml:"strategy"`
	Policies    int                       `json:"policies" yaml:"policies"`
	Conflicts   []ConflictEntry           `json:"conflicts" yaml:"conflicts"`
	Order       []string                  `json:"order,omitempty" yaml:"order,omitempty"`
	MergedRules []string                  `json:"merged_rules,omitempty" yaml:"merged_rules,omitempty"`
	Error       string                    `json:"error,omitempty" yaml:"error,omitempty"`
}

// ConflictEntry is one detected conflict with policy names resolved.
type ConflictEntry struct {
	Type        domain.ConflictType `json:"type" yaml:"type"`
	Policies    []string            `json:"policies" yaml:"policies"`
	Rules       []string            `json:"rules" yaml:"rules"`
	Description string              `json:"description" yaml:"description"`
}

func detectConflicts(cmd *cobra.Command, args []string) error {
	bundle, err := parseBundle(conflictsFlags.bundle)
	if err != nil {
		return cli.NewCommandError("conflicts", err)
	}

	policies := bundle.Policies
	strategy := domain.ResolveMostRestrictive
	if conflictsFlags.set != "" {
		set, ok := bundle.Set(conflictsFlags.set)
		if !ok {
			return cli.NewCommandError("conflicts", fmt.Errorf("policy set %q not found in bundle", conflictsFlags.set))
		}
		policies = bundle.Members(set)
		if set.ConflictResolution != "" {
			strategy = set.ConflictResolution
		}
	}
	if conflictsFlags.strategy != "" {
		strategy, err = domain.ParseConflictResolution(conflictsFlags.strategy)
		if err != nil {
			return cli.NewConfigError("--strategy", err.Error())
		}
	}

	names := make(map[string]string, len(policies))
	for _, p := range policies {
		names[p.ID.String()] = p.Name
	}

	resolver := conflict.NewResolver(strategy)
	detected := resolver.DetectConflicts(policies)

	report := &ConflictReport{
		Strategy:  strategy,
		Policies:  len(policies),
		Conflicts: make([]ConflictEntry, 0, len(detected)),
	}
	for _, c := range detected {
		entry := ConflictEntry{Type: c.Type, Rules: c.RuleIDs, Description: c.Description}
		for _, id := range c.PolicyIDs {
			entry.Policies = append(entry.Policies, names[id.String()])
		}
		report.Conflicts = append(report.Conflicts, entry)
	}

	resolveErr := resolve(resolver, policies, detected, report)
	if err := printResult(conflictsFlags.format, report); err != nil {
		return err
	}
	if errors.Is(resolveErr, conflict.ErrIrreconcilableConflict) {
		return cli.NonCompliant("%v", resolveErr)
	}
	if resolveErr != nil {
		return cli.NewCommandError("conflicts", resolveErr)
	}
	return nil
}

func resolve(resolver *conflict.Resolver, policies []*domain.Policy, detected []domain.PolicyConflict, report *ConflictReport) error {
	ordered, err := resolver.ResolveConflicts(policies, detected)
	if err != nil {
		report.Error = err.Error()
		return err
	}
	for _, p := range ordered {
		report.Order = append(report.Order, p.Name)
	}

	if !conflictsFlags.merge {
		return nil
	}
	merged, err := resolver.MergePolicies(ordered)
	if err != nil {
		report.Error = err.Error()
		return err
	}
	for _, rule := range merged.Rules {
		report.MergedRules = append(report.MergedRules, fmt.Sprintf("%s: %s", rule.ID, rule.Expression))
	}
	return nil
}

// RenderText prints the report for a terminal.
func (r *ConflictReport) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "%d conflict(s) among %d policies\n", len(r.Conflicts), r.Policies)
	for _, c := range r.Conflicts {
		fmt.Fprintf(w, "  [%s] %s (%s)\n", c.Type, strings.Join(c.Policies, " vs "), strings.Join(c.Rules, ", "))
		if c.Description != "" {
			fmt.Fprintf(w, "      %s\n", c.Description)
		}
	}
	fmt.Fprintf(w, "\nStrategy: %s\n", r.Strategy)
	if r.Error != "" {
		_, err := fmt.Fprintf(w, "✗ %s\n", r.Error)
		return err
	}
	for i, name := range r.Order {
		fmt.Fprintf(w, "  %d. %s\n", i+1, name)
	}
	if len(r.MergedRules) > 0 {
		fmt.Fprintln(w, "\nMerged rules:")
		for _, rule := range r.MergedRules {
			fmt.Fprintf(w, "  %s\n", rule)
		}
	}
	return nil
}
