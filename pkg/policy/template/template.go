package template

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
)

// ParameterType is the declared type of a template parameter.
type ParameterType string

const (
	TypeString      ParameterType = "string"
	TypeInteger     ParameterType = "integer"
	TypeFloat       ParameterType = "float"
	TypeBoolean     ParameterType = "boolean"
	TypeStringList  ParameterType = "string_list"
	TypeIntegerList ParameterType = "integer_list"
	// TypeDuration values are strings accepted by time.ParseDuration.
	TypeDuration ParameterType = "duration"
	TypeDateTime ParameterType = "datetime"
)

// Accepts reports whether v has the shape of the type.
func (t ParameterType) Accepts(v ast.Value) bool {
	switch t {
	case TypeString:
		return v.Kind() == ast.KindString
	case TypeInteger:
		return v.Kind() == ast.KindInteger
	case TypeFloat:
		return v.Kind() == ast.KindFloat
	case TypeBoolean:
		return v.Kind() == ast.KindBool
	case TypeStringList:
		return listOf(v, ast.KindString)
	case TypeIntegerList:
		return listOf(v, ast.KindInteger)
	case TypeDuration:
		s, ok := v.(ast.String)
		if !ok {
			return false
		}
		_, err := time.ParseDuration(string(s))
		return err == nil
	case TypeDateTime:
		return v.Kind() == ast.KindDateTime
	default:
		return false
	}
}

func listOf(v ast.Value, kind ast.Kind) bool {
	l, ok := v.(ast.List)
	if !ok {
		return false
	}
	for _, item := range l {
		if item.Kind() != kind {
			return false
		}
	}
	return true
}

// Parse converts command-line text into a value of the type. Lists are
// comma separated.
func (t ParameterType) Parse(raw string) (ast.Value, error) {
	switch t {
	case TypeString:
		return ast.String(raw), nil
	case TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		return ast.Integer(n), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		return ast.Float(f), nil
	case TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, err
		}
		return ast.Bool(b), nil
	case TypeStringList, TypeIntegerList:
		var out ast.List
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t == TypeStringList {
				out = append(out, ast.String(part))
				continue
			}
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, err
			}
			out = append(out, ast.Integer(n))
		}
		return out, nil
	case TypeDuration:
		if _, err := time.ParseDuration(raw); err != nil {
			return nil, err
		}
		return ast.String(raw), nil
	case TypeDateTime:
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, err
		}
		return ast.NewDateTime(ts), nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", t)
	}
}

// Parameter declares one template input. Validation, when set, is evaluated
// against a context whose field "value" holds the candidate.
type Parameter struct {
	Name        string
	Description string
	Type        ParameterType
	Default     ast.Value
	Required    bool
	Validation  ast.Expression
}

// Template is a reusable policy blueprint.
type Template struct {
	ID                 uuid.UUID
	Name               string
	Description        string
	Category           string
	Tags               []string
	Parameters         []Parameter
	BaseRules          []domain.Rule
	Target             domain.Target
	DefaultEnforcement domain.EnforcementLevel
}

// Parameter returns the parameter named name.
func (t *Template) Parameter(name string) (Parameter, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}
