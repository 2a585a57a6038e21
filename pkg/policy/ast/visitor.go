package ast

import (
	"fmt"
	"sort"
)

// VisitFunc is called for every node during Walk. Returning an error stops
// the traversal and Walk returns that error.
type VisitFunc func(Expression) error

// Walk traverses the expression tree depth first, calling fn for each node
// before its children.
func Walk(expr Expression, fn VisitFunc) error {
	if expr == nil {
		return nil
	}
	if err := fn(expr); err != nil {
		return err
	}

	switch e := expr.(type) {
	case And:
		for _, child := range e.Children {
			if err := Walk(child, fn); err != nil {
				return err
			}
		}
	case Or:
		for _, child := range e.Children {
			if err := Walk(child, fn); err != nil {
				return err
			}
		}
	case Not:
		return Walk(e.Child, fn)
	}

	return nil
}

// Fields returns the sorted set of context field names referenced by expr.
// Custom nodes contribute their argument keys.
func Fields(expr Expression) []string {
	seen := make(map[string]struct{})
	_ = Walk(expr, func(node Expression) error {
		if field, ok := FieldOf(node); ok {
			seen[field] = struct{}{}
			return nil
		}
		if custom, ok := node.(Custom); ok {
			for key := range custom.Args {
				seen[key] = struct{}{}
			}
		}
		return nil
	})

	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// SharesField reports whether a and b reference at least one common field.
func SharesField(a, b Expression) bool {
	left := Fields(a)
	if len(left) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(left))
	for _, f := range left {
		set[f] = struct{}{}
	}
	for _, f := range Fields(b) {
		if _, ok := set[f]; ok {
			return true
		}
	}
	return false
}

// Validate checks an expression tree for structural problems: nil nodes,
// empty field names, empty custom predicate names and nil operands.
func Validate(expr Expression) error {
	if expr == nil {
		return fmt.Errorf("expression is nil")
	}
	return Walk(expr, func(node Expression) error {
		switch e := node.(type) {
		case Not:
			if e.Child == nil {
				return fmt.Errorf("not: missing child expression")
			}
		case And:
			for i, c := range e.Children {
				if c == nil {
					return fmt.Errorf("all: child %d is nil", i)
				}
			}
		case Or:
			for i, c := range e.Children {
				if c == nil {
					return fmt.Errorf("any: child %d is nil", i)
				}
			}
		case Custom:
			if e.Predicate == "" {
				return fmt.Errorf("custom: predicate name is empty")
			}
		}

		if field, ok := FieldOf(node); ok && field == "" {
			return fmt.Errorf("%s: field name is empty", node.Op())
		}
		if v, ok := operandOf(node); ok && v == nil {
			return fmt.Errorf("%s: operand is nil", node.Op())
		}
		return nil
	})
}

func operandOf(expr Expression) (Value, bool) {
	switch e := expr.(type) {
	case Equal:
		return e.Value, true
	case NotEqual:
		return e.Value, true
	case GreaterThan:
		return e.Value, true
	case GreaterThanOrEqual:
		return e.Value, true
	case LessThan:
		return e.Value, true
	case LessThanOrEqual:
		return e.Value, true
	case Contains:
		return e.Value, true
	default:
		return nil, false
	}
}
