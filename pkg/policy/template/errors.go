package template

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrTemplateNotFound indicates no template is registered under the name.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrMissingParameter indicates a required parameter has no value.
	ErrMissingParameter = errors.New("missing required parameter")

	// ErrInvalidParameterValue indicates a value of the wrong type.
	ErrInvalidParameterValue = errors.New("invalid parameter value")

	// ErrValidationFailed indicates a value rejected by the parameter's
	// validation expression.
	ErrValidationFailed = errors.New("parameter validation failed")
)

// NotFoundError names the unknown template.
type NotFoundError struct {
	Name string
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("template not found: %s", e.Name)
}

// Unwrap returns ErrTemplateNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrTemplateNotFound
}

// ParameterError records why a parameter was rejected. Err is one of
// ErrMissingParameter, ErrInvalidParameterValue or ErrValidationFailed.
type ParameterError struct {
	Template  string
	Parameter string
	Reason    string
	Err       error
}

// Error returns the error message.
func (e *ParameterError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("template %q: %v: %s", e.Template, e.Err, e.Parameter)
	}
	return fmt.Sprintf("template %q: %v for %s: %s", e.Template, e.Err, e.Parameter, e.Reason)
}

// Unwrap returns the underlying sentinel.
func (e *ParameterError) Unwrap() error {
	return e.Err
}
