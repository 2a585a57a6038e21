package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/tribune/pkg/cli"
	"mercator-hq/tribune/pkg/policy/conflict"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/parser"
)

var lintFlags struct {
	bundle string
	strict bool
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate a policy bundle",
	Long: `Validate a policy bundle for syntax and semantic errors.

The lint command parses every bundle file and reports:
  - YAML syntax errors with line and column
  - Unknown operators, fields and enum values
  - Template parameter errors
  - References to undefined policies
  - Conflicting rules between policies (as warnings)

Examples:
  # Lint a single file
  tribune lint --bundle policies.yaml

  # Lint a directory
  tribune lint --bundle policies/

  # Strict mode (warnings as errors)
  tribune lint --bundle policies/ --strict

  # JSON output for CI/CD
  tribune lint --bundle policies/ --format json`,
	RunE: lintBundle,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.bundle, "bundle", "b", "", "bundle file or directory to validate")
	lintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "treat warnings as errors")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json, yaml")
}

// LintResult is the validation result for one bundle.
type LintResult struct {
	Bundle     string      `json:"bundle" yaml:"bundle"`
	Valid      bool        `json:"valid" yaml:"valid"`
	Policies   int         `json:"policies" yaml:"policies"`
	Sets       int         `json:"policy_sets" yaml:"policy_sets"`
	Exemptions int         `json:"exemptions" yaml:"exemptions"`
	Errors     []LintIssue `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings   []LintIssue `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// LintIssue is a single error or warning.
type LintIssue struct {
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	Line       int    `json:"line,omitempty" yaml:"line,omitempty"`
	Column     int    `json:"column,omitempty" yaml:"column,omitempty"`
	Kind       string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message    string `json:"message" yaml:"message"`
	Suggestion string `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

func lintBundle(cmd *cobra.Command, args []string) error {
	if lintFlags.bundle == "" {
		return cli.NewConfigError("--bundle", "a bundle file or directory is required")
	}

	result := validateBundle(lintFlags.bundle)
	if err := printResult(lintFlags.format, result); err != nil {
		return err
	}

	if len(result.Errors) > 0 {
		return cli.NewCommandError("lint", fmt.Errorf("validation failed with %d error(s)", len(result.Errors)))
	}
	if lintFlags.strict && len(result.Warnings) > 0 {
		return cli.NewCommandError("lint", fmt.Errorf("strict mode: %d warning(s)", len(result.Warnings)))
	}
	return nil
}

func validateBundle(path string) *LintResult {
	result := &LintResult{Bundle: path, Valid: true}

	bundle, err := parser.NewParser().Parse(path)
	if err != nil {
		result.Valid = false
		result.Errors = lintIssues(err)
		return result
	}
	result.Policies = len(bundle.Policies)
	result.Sets = len(bundle.Sets)
	result.Exemptions = len(bundle.Exemptions)

	resolver := conflict.NewResolver(domain.ResolveMostRestrictive)
	for _, c := range resolver.DetectConflicts(bundle.Policies) {
		result.Warnings = append(result.Warnings, LintIssue{
			Kind:    "conflict:" + string(c.Type),
			Message: c.Description,
		})
	}
	return result
}

// lintIssues flattens a parse error into located issues.
func lintIssues(err error) []LintIssue {
	var list *parser.ErrorList
	if errors.As(err, &list) {
		issues := make([]LintIssue, 0, len(list.Errors))
		for _, e := range list.Errors {
			issues = append(issues, lintIssue(e))
		}
		return issues
	}
	var single *parser.Error
	if errors.As(err, &single) {
		return []LintIssue{lintIssue(single)}
	}
	return []LintIssue{{Message: err.Error()}}
}

func lintIssue(e *parser.Error) LintIssue {
	issue := LintIssue{
		File:       e.Location.File,
		Line:       e.Location.Line,
		Column:     e.Location.Column,
		Message:    e.Message,
		Suggestion: e.Suggestion,
	}
	if e.Kind != nil {
		issue.Kind = e.Kind.Error()
	}
	return issue
}

// RenderText prints the result for a terminal.
func (r *LintResult) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "Validating %s...\n", r.Bundle)
	if r.Valid {
		fmt.Fprintf(w, "✓ Syntax valid (%d policies, %d policy sets, %d exemptions)\n", r.Policies, r.Sets, r.Exemptions)
	}

	for _, e := range r.Errors {
		fmt.Fprintf(w, "✗ Error: %s", e.Message)
		writeLocation(w, e)
		if e.Kind != "" {
			fmt.Fprintf(w, " [%s]", e.Kind)
		}
		if e.Suggestion != "" {
			fmt.Fprintf(w, "\n    hint: %s", e.Suggestion)
		}
		fmt.Fprintln(w)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "⚠  Warning: %s [%s]\n", warn.Message, warn.Kind)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	_, err := fmt.Fprintf(w, "  %d error(s), %d warning(s)\n", len(r.Errors), len(r.Warnings))
	return err
}

func writeLocation(w io.Writer, issue LintIssue) {
	if issue.Line == 0 {
		if issue.File != "" {
			fmt.Fprintf(w, " (%s)", issue.File)
		}
		return
	}
	fmt.Fprintf(w, " (%s line %d", issue.File, issue.Line)
	if issue.Column > 0 {
		fmt.Fprintf(w, ", col %d", issue.Column)
	}
	fmt.Fprint(w, ")")
}
