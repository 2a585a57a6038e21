package ast

import (
	"fmt"
	"strings"
)

// Op is the short operator tag of an expression node. It is used in the
// encoded form and in bundle files.
type Op string

const (
	OpEqual              Op = "eq"
	OpNotEqual           Op = "ne"
	OpGreaterThan        Op = "gt"
	OpGreaterThanOrEqual Op = "gte"
	OpLessThan           Op = "lt"
	OpLessThanOrEqual    Op = "lte"
	OpAnd                Op = "all"
	OpOr                 Op = "any"
	OpNot                Op = "not"
	OpIn                 Op = "in"
	OpNotIn              Op = "not_in"
	OpContains           Op = "contains"
	OpMatches            Op = "matches"
	OpStartsWith         Op = "starts_with"
	OpEndsWith           Op = "ends_with"
	OpExists             Op = "exists"
	OpNotExists          Op = "not_exists"
	OpCustom             Op = "custom"
)

// Ops lists every operator tag, one per Expression variant.
var Ops = []Op{
	OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual,
	OpAnd, OpOr, OpNot, OpIn, OpNotIn, OpContains, OpMatches, OpStartsWith, OpEndsWith,
	OpExists, OpNotExists, OpCustom,
}

// Expression is a boolean predicate over an evaluation context. The set of
// implementations is closed.
type Expression interface {
	// Op returns the operator tag of the node.
	Op() Op

	// String renders the expression in a compact infix form.
	String() string

	isExpression()
}

// Equal holds when the field equals Value.
type Equal struct {
	Field string
	Value Value
}

// NotEqual holds when the field differs from Value.
type NotEqual struct {
	Field string
	Value Value
}

// GreaterThan holds when the field is ordered after Value.
type GreaterThan struct {
	Field string
	Value Value
}

// GreaterThanOrEqual holds when the field is ordered after or equal to Value.
type GreaterThanOrEqual struct {
	Field string
	Value Value
}

// LessThan holds when the field is ordered before Value.
type LessThan struct {
	Field string
	Value Value
}

// LessThanOrEqual holds when the field is ordered before or equal to Value.
type LessThanOrEqual struct {
	Field string
	Value Value
}

// And holds when every child holds. An empty And holds.
type And struct {
	Children []Expression
}

// Or holds when at least one child holds. An empty Or does not hold.
type Or struct {
	Children []Expression
}

// Not inverts its child.
type Not struct {
	Child Expression
}

// In holds when the field equals one of Values.
type In struct {
	Field  string
	Values []Value
}

// NotIn holds when the field equals none of Values.
type NotIn struct {
	Field  string
	Values []Value
}

// Contains holds when a string field contains Value as a substring, or a list
// field contains an element equal to Value.
type Contains struct {
	Field string
	Value Value
}

// Matches holds when a string field matches the regular expression Pattern.
type Matches struct {
	Field   string
	Pattern string
}

// StartsWith holds when a string field begins with Prefix.
type StartsWith struct {
	Field  string
	Prefix string
}

// EndsWith holds when a string field ends with Suffix.
type EndsWith struct {
	Field  string
	Suffix string
}

// Exists holds when the field is present in the context.
type Exists struct {
	Field string
}

// NotExists holds when the field is absent from the context.
type NotExists struct {
	Field string
}

// Custom delegates to a predicate registered under Predicate.
type Custom struct {
	Predicate string
	Args      Map
}

func (Equal) isExpression()              {}
func (NotEqual) isExpression()           {}
func (GreaterThan) isExpression()        {}
func (GreaterThanOrEqual) isExpression() {}
func (LessThan) isExpression()           {}
func (LessThanOrEqual) isExpression()    {}
func (And) isExpression()                {}
func (Or) isExpression()                 {}
func (Not) isExpression()                {}
func (In) isExpression()                 {}
func (NotIn) isExpression()              {}
func (Contains) isExpression()           {}
func (Matches) isExpression()            {}
func (StartsWith) isExpression()         {}
func (EndsWith) isExpression()           {}
func (Exists) isExpression()             {}
func (NotExists) isExpression()          {}
func (Custom) isExpression()             {}

func (Equal) Op() Op              { return OpEqual }
func (NotEqual) Op() Op           { return OpNotEqual }
func (GreaterThan) Op() Op        { return OpGreaterThan }
func (GreaterThanOrEqual) Op() Op { return OpGreaterThanOrEqual }
func (LessThan) Op() Op           { return OpLessThan }
func (LessThanOrEqual) Op() Op    { return OpLessThanOrEqual }
func (And) Op() Op                { return OpAnd }
func (Or) Op() Op                 { return OpOr }
func (Not) Op() Op                { return OpNot }
func (In) Op() Op                 { return OpIn }
func (NotIn) Op() Op              { return OpNotIn }
func (Contains) Op() Op           { return OpContains }
func (Matches) Op() Op            { return OpMatches }
func (StartsWith) Op() Op         { return OpStartsWith }
func (EndsWith) Op() Op           { return OpEndsWith }
func (Exists) Op() Op             { return OpExists }
func (NotExists) Op() Op          { return OpNotExists }
func (Custom) Op() Op             { return OpCustom }

func (e Equal) String() string    { return binary(e.Field, "==", e.Value) }
func (e NotEqual) String() string { return binary(e.Field, "!=", e.Value) }
func (e GreaterThan) String() string {
	return binary(e.Field, ">", e.Value)
}
func (e GreaterThanOrEqual) String() string {
	return binary(e.Field, ">=", e.Value)
}
func (e LessThan) String() string { return binary(e.Field, "<", e.Value) }
func (e LessThanOrEqual) String() string {
	return binary(e.Field, "<=", e.Value)
}
func (e And) String() string { return joinChildren(e.Children, " && ", "true") }
func (e Or) String() string  { return joinChildren(e.Children, " || ", "false") }
func (e Not) String() string {
	if e.Child == nil {
		return "!(<nil>)"
	}
	return "!(" + e.Child.String() + ")"
}
func (e In) String() string    { return binary(e.Field, "in", List(e.Values)) }
func (e NotIn) String() string { return binary(e.Field, "not in", List(e.Values)) }
func (e Contains) String() string {
	return binary(e.Field, "contains", e.Value)
}
func (e Matches) String() string {
	return binary(e.Field, "matches", String(e.Pattern))
}
func (e StartsWith) String() string {
	return binary(e.Field, "starts_with", String(e.Prefix))
}
func (e EndsWith) String() string {
	return binary(e.Field, "ends_with", String(e.Suffix))
}
func (e Exists) String() string    { return "exists(" + e.Field + ")" }
func (e NotExists) String() string { return "!exists(" + e.Field + ")" }
func (e Custom) String() string {
	return fmt.Sprintf("%s(%s)", e.Predicate, strings.TrimSuffix(strings.TrimPrefix(e.Args.String(), "{"), "}"))
}

func binary(field, op string, v Value) string {
	if v == nil {
		return field + " " + op + " <nil>"
	}
	return field + " " + op + " " + v.String()
}

func joinChildren(children []Expression, sep, empty string) string {
	if len(children) == 0 {
		return empty
	}
	parts := make([]string, len(children))
	for i, c := range children {
		if c == nil {
			parts[i] = "<nil>"
			continue
		}
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// FieldOf returns the context field a field predicate reads. Connectives and
// Custom nodes return false.
func FieldOf(expr Expression) (string, bool) {
	switch e := expr.(type) {
	case Equal:
		return e.Field, true
	case NotEqual:
		return e.Field, true
	case GreaterThan:
		return e.Field, true
	case GreaterThanOrEqual:
		return e.Field, true
	case LessThan:
		return e.Field, true
	case LessThanOrEqual:
		return e.Field, true
	case In:
		return e.Field, true
	case NotIn:
		return e.Field, true
	case Contains:
		return e.Field, true
	case Matches:
		return e.Field, true
	case StartsWith:
		return e.Field, true
	case EndsWith:
		return e.Field, true
	case Exists:
		return e.Field, true
	case NotExists:
		return e.Field, true
	default:
		return "", false
	}
}
