package ast

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the variant of a Value.
type Kind int

const (
	// KindNull is the absent value.
	KindNull Kind = iota
	// KindBool is a boolean.
	KindBool
	// KindInteger is a signed 64-bit integer.
	KindInteger
	// KindFloat is a 64-bit float.
	KindFloat
	// KindString is a UTF-8 string.
	KindString
	// KindDateTime is a UTC timestamp.
	KindDateTime
	// KindList is an ordered list of values.
	KindList
	// KindMap is a string-keyed map of values.
	KindMap
)

var kindNames = map[Kind]string{
	KindNull:     "null",
	KindBool:     "bool",
	KindInteger:  "integer",
	KindFloat:    "float",
	KindString:   "string",
	KindDateTime: "datetime",
	KindList:     "list",
	KindMap:      "map",
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// parseKind maps a kind name back to a Kind.
func parseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Value is a typed literal. The set of implementations is closed.
type Value interface {
	// Kind returns the variant tag.
	Kind() Kind

	// String renders the value for messages and logs.
	String() string

	isValue()
}

// Null is the absent value.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Integer is a signed 64-bit integer value.
type Integer int64

// Float is a 64-bit floating point value.
type Float float64

// String is a string value.
type String string

// DateTime is a timestamp value, normalized to UTC.
type DateTime struct {
	time.Time
}

// List is an ordered list of values.
type List []Value

// Map is a string-keyed map of values.
type Map map[string]Value

func (Null) isValue()     {}
func (Bool) isValue()     {}
func (Integer) isValue()  {}
func (Float) isValue()    {}
func (String) isValue()   {}
func (DateTime) isValue() {}
func (List) isValue()     {}
func (Map) isValue()      {}

func (Null) Kind() Kind     { return KindNull }
func (Bool) Kind() Kind     { return KindBool }
func (Integer) Kind() Kind  { return KindInteger }
func (Float) Kind() Kind    { return KindFloat }
func (String) Kind() Kind   { return KindString }
func (DateTime) Kind() Kind { return KindDateTime }
func (List) Kind() Kind     { return KindList }
func (Map) Kind() Kind      { return KindMap }

func (Null) String() string { return "null" }

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }

func (f Float) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

func (s String) String() string { return strconv.Quote(string(s)) }

func (d DateTime) String() string { return d.Time.UTC().Format(time.RFC3339Nano) }

func (l List) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (m Map) String() string {
	keys := m.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strconv.Quote(k) + ": " + m[k].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Keys returns the map keys in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewDateTime wraps t as a DateTime value in UTC.
func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t.UTC()}
}

// ValuesEqual reports whether a and b are structurally equal. Values of different
// kinds are never equal, so Integer(1) and Float(1) differ.
func ValuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Integer:
		return av == b.(Integer)
	case Float:
		return av == b.(Float)
	case String:
		return av == b.(String)
	case DateTime:
		return av.Time.Equal(b.(DateTime).Time)
	case List:
		bv := b.(List)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !ValuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv := b.(Map)
		if len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !ValuesEqual(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders a relative to b. It returns -1, 0 or +1 and true when the
// pair is ordered. Only Integer/Integer, Float/Float and String/String pairs
// are ordered; every other combination returns false.
func Compare(a, b Value) (int, bool) {
	switch av := a.(type) {
	case Integer:
		bv, ok := b.(Integer)
		if !ok {
			return 0, false
		}
		return compareOrdered(av, bv), true
	case Float:
		bv, ok := b.(Float)
		if !ok {
			return 0, false
		}
		if math.IsNaN(float64(av)) || math.IsNaN(float64(bv)) {
			return 0, false
		}
		return compareOrdered(av, bv), true
	case String:
		bv, ok := b.(String)
		if !ok {
			return 0, false
		}
		return strings.Compare(string(av), string(bv)), true
	default:
		return 0, false
	}
}

func compareOrdered[T ~int64 | ~float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ListContains reports whether list holds an element equal to v.
func ListContains(list List, v Value) bool {
	for _, item := range list {
		if ValuesEqual(item, v) {
			return true
		}
	}
	return false
}

// FromNative converts a decoded YAML or JSON scalar tree into a Value.
// Supported inputs are nil, bool, the integer and float kinds, string,
// time.Time, []any, map[string]any and existing Values.
func FromNative(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Integer(t), nil
	case int32:
		return Integer(t), nil
	case int64:
		return Integer(t), nil
	case uint:
		return Integer(t), nil
	case uint32:
		return Integer(t), nil
	case uint64:
		return Integer(t), nil
	case float32:
		return Float(t), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case time.Time:
		return NewDateTime(t), nil
	case []any:
		list := make(List, 0, len(t))
		for i, item := range t {
			converted, err := FromNative(item)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			list = append(list, converted)
		}
		return list, nil
	case []string:
		list := make(List, 0, len(t))
		for _, item := range t {
			list = append(list, String(item))
		}
		return list, nil
	case map[string]any:
		m := make(Map, len(t))
		for k, item := range t {
			converted, err := FromNative(item)
			if err != nil {
				return nil, fmt.Errorf("map key %q: %w", k, err)
			}
			m[k] = converted
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// ToNative converts a Value into plain Go data suitable for printing.
func ToNative(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(t)
	case Integer:
		return int64(t)
	case Float:
		return float64(t)
	case String:
		return string(t)
	case DateTime:
		return t.Time
	case List:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ToNative(item)
		}
		return out
	case Map:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = ToNative(item)
		}
		return out
	default:
		return nil
	}
}
