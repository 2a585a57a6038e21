// Package ast defines the value and expression model that Tribune rules are
// written in.
//
// # Values
//
// A Value is a closed union of typed literals used both as rule operands and
// as evaluation context fields:
//
//   - Null
//   - Bool
//   - Integer (int64)
//   - Float (float64)
//   - String
//   - DateTime (UTC timestamp)
//   - List (ordered []Value)
//   - Map (map[string]Value)
//
// Values are immutable once constructed. Equal performs deep structural
// equality; Compare only orders Integer/Integer, Float/Float and
// String/String pairs and reports "no ordering" for everything else.
//
// # Expressions
//
// An Expression is a closed union of boolean predicates over an evaluation
// context. Field predicates (Equal, NotEqual, GreaterThan, GreaterThanOrEqual,
// LessThan, LessThanOrEqual, In, NotIn, Contains, Matches, StartsWith,
// EndsWith) name a context field and an operand. Exists and NotExists test
// field presence. And, Or and Not combine sub-expressions. Custom names an
// externally registered predicate together with its arguments.
//
// Both unions are sealed: only types declared in this package satisfy Value
// and Expression. Switches over them end in a default branch that reports the
// unsupported variant.
//
// # Traversal
//
// Walk visits every node of an expression tree depth first. Fields collects
// the set of context field names an expression references; the conflict
// detector uses it as a cheap pre-filter.
//
// # Encoding
//
// Values and expressions encode to a tagged JSON form so that they survive the
// event log unchanged:
//
//	{"kind":"integer","value":2048}
//	{"op":"gte","field":"key_size","value":{"kind":"integer","value":2048}}
//
// Use UnmarshalValue and UnmarshalExpression to decode them.
package ast
