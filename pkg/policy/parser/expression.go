package parser

import (
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/tribune/pkg/policy/ast"
)

// comparisonOps maps a leaf operator key to the node it builds.
var comparisonOps = map[string]ast.Op{
	"eq":          ast.OpEqual,
	"ne":          ast.OpNotEqual,
	"gt":          ast.OpGreaterThan,
	"gte":         ast.OpGreaterThanOrEqual,
	"lt":          ast.OpLessThan,
	"lte":         ast.OpLessThanOrEqual,
	"contains":    ast.OpContains,
	"in":          ast.OpIn,
	"not_in":      ast.OpNotIn,
	"matches":     ast.OpMatches,
	"starts_with": ast.OpStartsWith,
	"ends_with":   ast.OpEndsWith,
	"exists":      ast.OpExists,
	"not_exists":  ast.OpNotExists,
}

// entry is one key/value pair of a mapping node.
type entry struct {
	key   *yaml.Node
	value *yaml.Node
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func entries(n *yaml.Node) []entry {
	out := make([]entry, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, entry{key: n.Content[i], value: resolveAlias(n.Content[i+1])})
	}
	return out
}

// expression builds an expression from a mapping node. It records problems
// in the builder and returns nil when the node is unusable.
func (b *builder) expression(n *yaml.Node, depth int) ast.Expression {
	n = resolveAlias(n)
	if n == nil || n.Kind == 0 {
		return nil
	}
	if depth > b.maxDepth {
		b.fail(ErrStructure, n, "expression nested deeper than %d levels", b.maxDepth)
		return nil
	}
	if n.Kind != yaml.MappingNode {
		b.fail(ErrStructure, n, "expression must be a mapping, got %s", nodeKind(n))
		return nil
	}

	fields := entries(n)
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key.Value
	}

	switch {
	case slices.Contains(keys, "all"), slices.Contains(keys, "any"):
		return b.combinator(n, fields, depth)
	case slices.Contains(keys, "not"):
		if len(fields) != 1 {
			b.fail(ErrStructure, n, "not takes no sibling keys")
			return nil
		}
		child := b.expression(fields[0].value, depth+1)
		if child == nil {
			return nil
		}
		return ast.Not{Child: child}
	case slices.Contains(keys, "custom"):
		return b.custom(n, fields)
	default:
		return b.leaf(n, fields)
	}
}

func (b *builder) combinator(n *yaml.Node, fields []entry, depth int) ast.Expression {
	if len(fields) != 1 {
		b.fail(ErrStructure, n, "all/any takes no sibling keys")
		return nil
	}
	op, list := fields[0].key.Value, fields[0].value
	if list.Kind != yaml.SequenceNode {
		b.fail(ErrStructure, list, "%s expects a list of expressions", op)
		return nil
	}
	children := make([]ast.Expression, 0, len(list.Content))
	ok := true
	for _, item := range list.Content {
		child := b.expression(item, depth+1)
		if child == nil {
			ok = false
			continue
		}
		children = append(children, child)
	}
	if !ok {
		return nil
	}
	if op == "all" {
		return ast.And{Children: children}
	}
	return ast.Or{Children: children}
}

func (b *builder) custom(n *yaml.Node, fields []entry) ast.Expression {
	var out ast.Custom
	for _, f := range fields {
		switch f.key.Value {
		case "custom":
			if f.value.Kind != yaml.ScalarNode || f.value.Value == "" {
				b.fail(ErrStructure, f.value, "custom expects a predicate name")
				return nil
			}
			out.Predicate = f.value.Value
		case "args":
			v, ok := b.value(f.value)
			if !ok {
				return nil
			}
			args, isMap := v.(ast.Map)
			if !isMap {
				b.fail(ErrStructure, f.value, "custom args must be a mapping")
				return nil
			}
			out.Args = args
		default:
			b.fail(ErrStructure, f.key, "unknown key %q in custom expression", f.key.Value)
			return nil
		}
	}
	return out
}

func (b *builder) leaf(n *yaml.Node, fields []entry) ast.Expression {
	var (
		field   string
		opKey   string
		operand *yaml.Node
	)
	for _, f := range fields {
		if f.key.Value == "field" {
			field = f.value.Value
			continue
		}
		if _, known := comparisonOps[f.key.Value]; !known {
			b.fail(ErrStructure, f.key, "unknown operator %q", f.key.Value)
			return nil
		}
		if opKey != "" {
			b.fail(ErrStructure, f.key, "expression has two operators: %s and %s", opKey, f.key.Value)
			return nil
		}
		opKey, operand = f.key.Value, f.value
	}
	if field == "" {
		b.fail(ErrStructure, n, "comparison needs a field")
		return nil
	}
	if opKey == "" {
		b.fail(ErrStructure, n, "comparison on %q has no operator", field)
		return nil
	}

	switch op := comparisonOps[opKey]; op {
	case ast.OpIn, ast.OpNotIn:
		if operand.Kind != yaml.SequenceNode {
			b.fail(ErrStructure, operand, "%s expects a list", opKey)
			return nil
		}
		v, ok := b.value(operand)
		if !ok {
			return nil
		}
		if op == ast.OpIn {
			return ast.In{Field: field, Values: []ast.Value(v.(ast.List))}
		}
		return ast.NotIn{Field: field, Values: []ast.Value(v.(ast.List))}
	case ast.OpMatches, ast.OpStartsWith, ast.OpEndsWith:
		if operand.Kind != yaml.ScalarNode {
			b.fail(ErrStructure, operand, "%s expects a string", opKey)
			return nil
		}
		switch op {
		case ast.OpMatches:
			if _, err := regexp.Compile(operand.Value); err != nil {
				b.fail(ErrStructure, operand, "invalid pattern: %v", err)
				return nil
			}
			return ast.Matches{Field: field, Pattern: operand.Value}
		case ast.OpStartsWith:
			return ast.StartsWith{Field: field, Prefix: operand.Value}
		default:
			return ast.EndsWith{Field: field, Suffix: operand.Value}
		}
	case ast.OpExists, ast.OpNotExists:
		var want bool
		if err := operand.Decode(&want); err != nil {
			b.fail(ErrStructure, operand, "%s expects true or false", opKey)
			return nil
		}
		if want == (op == ast.OpExists) {
			return ast.Exists{Field: field}
		}
		return ast.NotExists{Field: field}
	default:
		v, ok := b.value(operand)
		if !ok {
			return nil
		}
		switch op {
		case ast.OpEqual:
			return ast.Equal{Field: field, Value: v}
		case ast.OpNotEqual:
			return ast.NotEqual{Field: field, Value: v}
		case ast.OpGreaterThan:
			return ast.GreaterThan{Field: field, Value: v}
		case ast.OpGreaterThanOrEqual:
			return ast.GreaterThanOrEqual{Field: field, Value: v}
		case ast.OpLessThan:
			return ast.LessThan{Field: field, Value: v}
		case ast.OpLessThanOrEqual:
			return ast.LessThanOrEqual{Field: field, Value: v}
		default:
			return ast.Contains{Field: field, Value: v}
		}
	}
}

// value converts a node to a Value using its resolved tag.
func (b *builder) value(n *yaml.Node) (ast.Value, bool) {
	n = resolveAlias(n)
	if n == nil || n.Kind == 0 {
		return ast.Null{}, true
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return b.scalar(n)
	case yaml.SequenceNode:
		list := make(ast.List, 0, len(n.Content))
		for _, item := range n.Content {
			v, ok := b.value(item)
			if !ok {
				return nil, false
			}
			list = append(list, v)
		}
		return list, true
	case yaml.MappingNode:
		m := make(ast.Map, len(n.Content)/2)
		for _, f := range entries(n) {
			v, ok := b.value(f.value)
			if !ok {
				return nil, false
			}
			m[f.key.Value] = v
		}
		return m, true
	default:
		b.fail(ErrStructure, n, "unsupported value node %s", nodeKind(n))
		return nil, false
	}
}

func (b *builder) scalar(n *yaml.Node) (ast.Value, bool) {
	var err error
	switch n.ShortTag() {
	case "!!null":
		return ast.Null{}, true
	case "!!bool":
		var v bool
		if err = n.Decode(&v); err == nil {
			return ast.Bool(v), true
		}
	case "!!int":
		var v int64
		if err = n.Decode(&v); err == nil {
			return ast.Integer(v), true
		}
	case "!!float":
		var v float64
		if err = n.Decode(&v); err == nil {
			return ast.Float(v), true
		}
	case "!!timestamp":
		var v time.Time
		if err = n.Decode(&v); err == nil {
			return ast.NewDateTime(v), true
		}
	default:
		return ast.String(n.Value), true
	}
	b.fail(ErrStructure, n, "invalid %s value %q: %v", n.ShortTag(), n.Value, err)
	return nil, false
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "empty node"
	}
}
