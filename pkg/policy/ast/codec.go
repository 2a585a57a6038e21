package ast

import (
	"encoding/json"
	"fmt"
	"time"
)

// valueEnvelope is the tagged JSON form of a Value.
type valueEnvelope struct {
	Kind  string `json:"kind"`
	Value any    `json:"value,omitempty"`
}

type rawValueEnvelope struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (Null) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueEnvelope{Kind: KindNull.String()})
}

func (b Bool) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueEnvelope{Kind: KindBool.String(), Value: bool(b)})
}

func (i Integer) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueEnvelope{Kind: KindInteger.String(), Value: int64(i)})
}

func (f Float) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueEnvelope{Kind: KindFloat.String(), Value: float64(f)})
}

func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(rawStringEnvelope{Kind: KindString.String(), Value: string(s)})
}

// rawStringEnvelope keeps empty strings in the encoded form.
type rawStringEnvelope struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueEnvelope{Kind: KindDateTime.String(), Value: d.Time.UTC().Format(time.RFC3339Nano)})
}

func (l List) MarshalJSON() ([]byte, error) {
	items := []Value(l)
	if items == nil {
		items = []Value{}
	}
	return json.Marshal(valueEnvelope{Kind: KindList.String(), Value: items})
}

func (m Map) MarshalJSON() ([]byte, error) {
	entries := map[string]Value(m)
	if entries == nil {
		entries = map[string]Value{}
	}
	return json.Marshal(valueEnvelope{Kind: KindMap.String(), Value: entries})
}

// UnmarshalValue decodes the tagged JSON form produced by a Value's
// MarshalJSON.
func UnmarshalValue(data []byte) (Value, error) {
	var env rawValueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}

	kind, ok := parseKind(env.Kind)
	if !ok {
		return nil, fmt.Errorf("decode value: unknown kind %q", env.Kind)
	}

	switch kind {
	case KindNull:
		return Null{}, nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(env.Value, &b); err != nil {
			return nil, fmt.Errorf("decode bool: %w", err)
		}
		return Bool(b), nil
	case KindInteger:
		var i int64
		if err := json.Unmarshal(env.Value, &i); err != nil {
			return nil, fmt.Errorf("decode integer: %w", err)
		}
		return Integer(i), nil
	case KindFloat:
		var f float64
		if err := json.Unmarshal(env.Value, &f); err != nil {
			return nil, fmt.Errorf("decode float: %w", err)
		}
		return Float(f), nil
	case KindString:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, fmt.Errorf("decode string: %w", err)
		}
		return String(s), nil
	case KindDateTime:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, fmt.Errorf("decode datetime: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("decode datetime: %w", err)
		}
		return NewDateTime(t), nil
	case KindList:
		var raw []json.RawMessage
		if err := json.Unmarshal(env.Value, &raw); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		list := make(List, 0, len(raw))
		for i, item := range raw {
			v, err := UnmarshalValue(item)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			list = append(list, v)
		}
		return list, nil
	case KindMap:
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(env.Value, &raw); err != nil {
			return nil, fmt.Errorf("decode map: %w", err)
		}
		m := make(Map, len(raw))
		for k, item := range raw {
			v, err := UnmarshalValue(item)
			if err != nil {
				return nil, fmt.Errorf("map key %q: %w", k, err)
			}
			m[k] = v
		}
		return m, nil
	default:
		return nil, fmt.Errorf("decode value: unsupported kind %s", kind)
	}
}

// UnmarshalValues decodes a JSON array of tagged values.
func UnmarshalValues(data []byte) ([]Value, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return decodeValueList(raw)
}

func decodeValueList(raw []json.RawMessage) ([]Value, error) {
	if raw == nil {
		return nil, nil
	}
	out := make([]Value, 0, len(raw))
	for i, item := range raw {
		v, err := UnmarshalValue(item)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// exprEnvelope is the tagged JSON form of an Expression.
type exprEnvelope struct {
	Op        Op           `json:"op"`
	Field     string       `json:"field,omitempty"`
	Value     Value        `json:"value,omitempty"`
	Values    []Value      `json:"values,omitempty"`
	Pattern   string       `json:"pattern,omitempty"`
	Children  []Expression `json:"children,omitempty"`
	Child     Expression   `json:"child,omitempty"`
	Predicate string       `json:"predicate,omitempty"`
	Args      Map          `json:"args,omitempty"`
}

type rawExprEnvelope struct {
	Op        Op                `json:"op"`
	Field     string            `json:"field"`
	Value     json.RawMessage   `json:"value"`
	Values    []json.RawMessage `json:"values"`
	Pattern   string            `json:"pattern"`
	Children  []json.RawMessage `json:"children"`
	Child     json.RawMessage   `json:"child"`
	Predicate string            `json:"predicate"`
	Args      json.RawMessage   `json:"args"`
}

// MarshalExpression encodes expr in its tagged JSON form.
func MarshalExpression(expr Expression) ([]byte, error) {
	env := exprEnvelope{}
	switch e := expr.(type) {
	case Equal:
		env = exprEnvelope{Op: OpEqual, Field: e.Field, Value: e.Value}
	case NotEqual:
		env = exprEnvelope{Op: OpNotEqual, Field: e.Field, Value: e.Value}
	case GreaterThan:
		env = exprEnvelope{Op: OpGreaterThan, Field: e.Field, Value: e.Value}
	case GreaterThanOrEqual:
		env = exprEnvelope{Op: OpGreaterThanOrEqual, Field: e.Field, Value: e.Value}
	case LessThan:
		env = exprEnvelope{Op: OpLessThan, Field: e.Field, Value: e.Value}
	case LessThanOrEqual:
		env = exprEnvelope{Op: OpLessThanOrEqual, Field: e.Field, Value: e.Value}
	case And:
		env = exprEnvelope{Op: OpAnd, Children: nonNilChildren(e.Children)}
	case Or:
		env = exprEnvelope{Op: OpOr, Children: nonNilChildren(e.Children)}
	case Not:
		env = exprEnvelope{Op: OpNot, Child: e.Child}
	case In:
		env = exprEnvelope{Op: OpIn, Field: e.Field, Values: e.Values}
	case NotIn:
		env = exprEnvelope{Op: OpNotIn, Field: e.Field, Values: e.Values}
	case Contains:
		env = exprEnvelope{Op: OpContains, Field: e.Field, Value: e.Value}
	case Matches:
		env = exprEnvelope{Op: OpMatches, Field: e.Field, Pattern: e.Pattern}
	case StartsWith:
		env = exprEnvelope{Op: OpStartsWith, Field: e.Field, Pattern: e.Prefix}
	case EndsWith:
		env = exprEnvelope{Op: OpEndsWith, Field: e.Field, Pattern: e.Suffix}
	case Exists:
		env = exprEnvelope{Op: OpExists, Field: e.Field}
	case NotExists:
		env = exprEnvelope{Op: OpNotExists, Field: e.Field}
	case Custom:
		env = exprEnvelope{Op: OpCustom, Predicate: e.Predicate, Args: e.Args}
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("encode expression: unsupported node %T", expr)
	}
	return json.Marshal(env)
}

func nonNilChildren(children []Expression) []Expression {
	if children == nil {
		return []Expression{}
	}
	return children
}

// UnmarshalExpression decodes the tagged JSON form of an expression.
func UnmarshalExpression(data []byte) (Expression, error) {
	if string(data) == "null" || len(data) == 0 {
		return nil, nil
	}

	var env rawExprEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode expression: %w", err)
	}

	value := func() (Value, error) {
		if len(env.Value) == 0 {
			return nil, fmt.Errorf("%s: missing value", env.Op)
		}
		return UnmarshalValue(env.Value)
	}

	switch env.Op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual, OpContains:
		v, err := value()
		if err != nil {
			return nil, err
		}
		return comparison(env.Op, env.Field, v), nil
	case OpAnd, OpOr:
		children := make([]Expression, 0, len(env.Children))
		for i, raw := range env.Children {
			child, err := UnmarshalExpression(raw)
			if err != nil {
				return nil, fmt.Errorf("%s child %d: %w", env.Op, i, err)
			}
			children = append(children, child)
		}
		if env.Op == OpAnd {
			return And{Children: children}, nil
		}
		return Or{Children: children}, nil
	case OpNot:
		child, err := UnmarshalExpression(env.Child)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return Not{Child: child}, nil
	case OpIn, OpNotIn:
		values, err := decodeValueList(env.Values)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", env.Op, err)
		}
		if env.Op == OpIn {
			return In{Field: env.Field, Values: values}, nil
		}
		return NotIn{Field: env.Field, Values: values}, nil
	case OpMatches:
		return Matches{Field: env.Field, Pattern: env.Pattern}, nil
	case OpStartsWith:
		return StartsWith{Field: env.Field, Prefix: env.Pattern}, nil
	case OpEndsWith:
		return EndsWith{Field: env.Field, Suffix: env.Pattern}, nil
	case OpExists:
		return Exists{Field: env.Field}, nil
	case OpNotExists:
		return NotExists{Field: env.Field}, nil
	case OpCustom:
		custom := Custom{Predicate: env.Predicate}
		if len(env.Args) > 0 {
			args, err := UnmarshalValue(env.Args)
			if err != nil {
				return nil, fmt.Errorf("custom args: %w", err)
			}
			m, ok := args.(Map)
			if !ok {
				return nil, fmt.Errorf("custom args: expected map, got %s", args.Kind())
			}
			custom.Args = m
		}
		return custom, nil
	default:
		return nil, fmt.Errorf("decode expression: unknown op %q", env.Op)
	}
}

// comparison builds the single-operand node for op.
func comparison(op Op, field string, v Value) Expression {
	switch op {
	case OpEqual:
		return Equal{Field: field, Value: v}
	case OpNotEqual:
		return NotEqual{Field: field, Value: v}
	case OpGreaterThan:
		return GreaterThan{Field: field, Value: v}
	case OpGreaterThanOrEqual:
		return GreaterThanOrEqual{Field: field, Value: v}
	case OpLessThan:
		return LessThan{Field: field, Value: v}
	case OpLessThanOrEqual:
		return LessThanOrEqual{Field: field, Value: v}
	default:
		return Contains{Field: field, Value: v}
	}
}

func (e Equal) MarshalJSON() ([]byte, error)              { return MarshalExpression(e) }
func (e NotEqual) MarshalJSON() ([]byte, error)           { return MarshalExpression(e) }
func (e GreaterThan) MarshalJSON() ([]byte, error)        { return MarshalExpression(e) }
func (e GreaterThanOrEqual) MarshalJSON() ([]byte, error) { return MarshalExpression(e) }
func (e LessThan) MarshalJSON() ([]byte, error)           { return MarshalExpression(e) }
func (e LessThanOrEqual) MarshalJSON() ([]byte, error)    { return MarshalExpression(e) }
func (e And) MarshalJSON() ([]byte, error)                { return MarshalExpression(e) }
func (e Or) MarshalJSON() ([]byte, error)                 { return MarshalExpression(e) }
func (e Not) MarshalJSON() ([]byte, error)                { return MarshalExpression(e) }
func (e In) MarshalJSON() ([]byte, error)                 { return MarshalExpression(e) }
func (e NotIn) MarshalJSON() ([]byte, error)              { return MarshalExpression(e) }
func (e Contains) MarshalJSON() ([]byte, error)           { return MarshalExpression(e) }
func (e Matches) MarshalJSON() ([]byte, error)            { return MarshalExpression(e) }
func (e StartsWith) MarshalJSON() ([]byte, error)         { return MarshalExpression(e) }
func (e EndsWith) MarshalJSON() ([]byte, error)           { return MarshalExpression(e) }
func (e Exists) MarshalJSON() ([]byte, error)             { return MarshalExpression(e) }
func (e NotExists) MarshalJSON() ([]byte, error)          { return MarshalExpression(e) }
func (e Custom) MarshalJSON() ([]byte, error)             { return MarshalExpression(e) }
