package parser

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors
var (
	// ErrSyntax indicates the input is not well-formed YAML.
	ErrSyntax = errors.New("syntax error")

	// ErrStructure indicates a missing or malformed field.
	ErrStructure = errors.New("invalid structure")

	// ErrReference indicates a name or id that resolves to nothing.
	ErrReference = errors.New("unresolved reference")

	// ErrDuplicate indicates two entries with the same name or id.
	ErrDuplicate = errors.New("duplicate entry")

	// ErrTooLarge indicates the input exceeds the configured size limit.
	ErrTooLarge = errors.New("input too large")
)

// Location is a position in a bundle file. Line and Column are 1-based.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns "file:line:column", or just the file when the line is
// unknown.
func (l Location) String() string {
	if l.Line == 0 {
		return l.File
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Error is one located problem in a bundle.
type Error struct {
	Kind       error
	Message    string
	Location   Location
	Suggestion string
}

// Error returns the error message.
func (e *Error) Error() string {
	var sb strings.Builder
	if loc := e.Location.String(); loc != "" {
		sb.WriteString(loc)
		sb.WriteString(": ")
	}
	fmt.Fprintf(&sb, "%v: %s", e.Kind, e.Message)
	if e.Suggestion != "" {
		fmt.Fprintf(&sb, " (%s)", e.Suggestion)
	}
	return sb.String()
}

// Unwrap returns the error kind.
func (e *Error) Unwrap() error {
	return e.Kind
}

// ErrorList accumulates every problem found in a bundle so one pass reports
// them all.
type ErrorList struct {
	Errors []*Error
}

// Add appends an error.
func (l *ErrorList) Add(kind error, loc Location, format string, args ...any) {
	l.Errors = append(l.Errors, &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Location: loc})
}

// HasErrors reports whether any error was recorded.
func (l *ErrorList) HasErrors() bool {
	return len(l.Errors) > 0
}

// Error returns the error message.
func (l *ErrorList) Error() string {
	switch len(l.Errors) {
	case 0:
		return ""
	case 1:
		return l.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors:", len(l.Errors))
	for _, err := range l.Errors {
		sb.WriteString("\n  ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap returns the individual errors so errors.Is matches any kind.
func (l *ErrorList) Unwrap() []error {
	out := make([]error, len(l.Errors))
	for i, err := range l.Errors {
		out[i] = err
	}
	return out
}

// ToError returns nil for an empty list and the list otherwise.
func (l *ErrorList) ToError() error {
	if !l.HasErrors() {
		return nil
	}
	return l
}
