package domain

import (
	"encoding/json"
	"fmt"

	"mercator-hq/tribune/pkg/policy/ast"
)

// Rule is one named constraint inside a policy.
type Rule struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Type         RuleType       `json:"type,omitempty"`
	Expression   ast.Expression `json:"expression"`
	Severity     Severity       `json:"severity"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Remediation  string         `json:"remediation,omitempty"`
}

// UnmarshalJSON decodes a rule, including its tagged expression tree.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	var aux struct {
		plain
		Expression json.RawMessage `json:"expression"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	expr, err := ast.UnmarshalExpression(aux.Expression)
	if err != nil {
		return fmt.Errorf("rule %q: %w", aux.ID, err)
	}
	*r = Rule(aux.plain)
	r.Expression = expr
	return nil
}

// MinKeySize requires key_size >= bits.
func MinKeySize(bits int64) Rule {
	return Rule{
		ID:           "min-key-size",
		Name:         "Minimum Key Size",
		Description:  fmt.Sprintf("Key size must be at least %d bits", bits),
		Type:         RuleTypeConstraint,
		Expression:   ast.GreaterThanOrEqual{Field: "key_size", Value: ast.Integer(bits)},
		Severity:     SeverityCritical,
		ErrorMessage: fmt.Sprintf("Key size must be at least %d bits", bits),
		Remediation:  fmt.Sprintf("Regenerate the key with at least %d bits", bits),
	}
}

// AllowedAlgorithms requires the algorithm field to be one of algorithms.
func AllowedAlgorithms(algorithms ...string) Rule {
	values := make([]ast.Value, len(algorithms))
	for i, a := range algorithms {
		values[i] = ast.String(a)
	}
	return Rule{
		ID:           "allowed-algorithms",
		Name:         "Allowed Algorithms",
		Description:  fmt.Sprintf("Algorithm must be one of %v", algorithms),
		Type:         RuleTypeConstraint,
		Expression:   ast.In{Field: "algorithm", Values: values},
		Severity:     SeverityCritical,
		ErrorMessage: fmt.Sprintf("Algorithm must be one of %v", algorithms),
		Remediation:  "Use an approved algorithm",
	}
}

// MaxValidityDays requires validity_days <= days.
func MaxValidityDays(days int64) Rule {
	return Rule{
		ID:           "max-validity-days",
		Name:         "Maximum Validity Period",
		Description:  fmt.Sprintf("Validity period must not exceed %d days", days),
		Type:         RuleTypeConstraint,
		Expression:   ast.LessThanOrEqual{Field: "validity_days", Value: ast.Integer(days)},
		Severity:     SeverityHigh,
		ErrorMessage: fmt.Sprintf("Validity period must not exceed %d days", days),
		Remediation:  fmt.Sprintf("Request a validity period of %d days or less", days),
	}
}

// Validate checks that the rule is well formed.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is empty")
	}
	if r.Name == "" {
		return fmt.Errorf("rule %q: name is empty", r.ID)
	}
	if err := ast.Validate(r.Expression); err != nil {
		return fmt.Errorf("rule %q: %w", r.ID, err)
	}
	return nil
}
