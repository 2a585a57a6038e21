package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/ast"
)

// Common sentinel errors
var (
	// ErrMissingContextField indicates a rule referenced a field the context
	// does not have.
	ErrMissingContextField = errors.New("missing context field")

	// ErrRuleEvaluationFailed indicates a rule could not be evaluated, for
	// example an unregistered custom predicate or an invalid pattern.
	ErrRuleEvaluationFailed = errors.New("rule evaluation failed")

	// ErrPolicyNotActive indicates the policy is not effective at the
	// evaluation time.
	ErrPolicyNotActive = errors.New("policy not active")

	// ErrUnsupportedExpression indicates an expression node the evaluator
	// does not know.
	ErrUnsupportedExpression = errors.New("unsupported expression")
)

// MissingFieldError indicates a rule referenced an absent context field.
type MissingFieldError struct {
	Field string
}

// Error returns the error message.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing context field %q", e.Field)
}

// Unwrap returns ErrMissingContextField.
func (e *MissingFieldError) Unwrap() error {
	return ErrMissingContextField
}

// RuleEvaluationError indicates an expression could not be evaluated.
type RuleEvaluationError struct {
	Op     ast.Op
	Detail string
	Cause  error
}

// Error returns the error message.
func (e *RuleEvaluationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

// Unwrap returns ErrRuleEvaluationFailed and the underlying cause.
func (e *RuleEvaluationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrRuleEvaluationFailed}
	}
	return []error{ErrRuleEvaluationFailed, e.Cause}
}

// EvaluationError locates a rule failure inside a policy.
type EvaluationError struct {
	PolicyID uuid.UUID
	RuleID   string
	Cause    error
}

// Error returns the error message.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("policy %s rule %s: %v", e.PolicyID, e.RuleID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}
