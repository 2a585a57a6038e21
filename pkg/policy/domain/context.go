package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"mercator-hq/tribune/pkg/policy/ast"
)

// Context is the input to an evaluation: named field values, the requesting
// principal, the evaluation time and free-form environment tags. Treat it as
// immutable; WithField returns a modified copy.
type Context struct {
	Fields      ast.Map           `json:"fields"`
	Requester   string            `json:"requester,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Environment map[string]string `json:"environment,omitempty"`
}

// NewContext copies fields into a new context stamped with now.
func NewContext(fields map[string]ast.Value, requester string, now time.Time) Context {
	return Context{
		Fields:    ast.Map(maps.Clone(fields)),
		Requester: requester,
		Timestamp: now,
	}
}

// Get returns the value of a field.
func (c Context) Get(field string) (ast.Value, bool) {
	v, ok := c.Fields[field]
	return v, ok
}

// WithField returns a copy of c with field set to v.
func (c Context) WithField(field string, v ast.Value) Context {
	fields := maps.Clone(c.Fields)
	if fields == nil {
		fields = make(ast.Map, 1)
	}
	fields[field] = v
	c.Fields = fields
	return c
}

// WithEnvironment returns a copy of c with an environment tag set.
func (c Context) WithEnvironment(key, value string) Context {
	env := maps.Clone(c.Environment)
	if env == nil {
		env = make(map[string]string, 1)
	}
	env[key] = value
	c.Environment = env
	return c
}

// UnmarshalJSON decodes a context. Fields may be a tagged map value, as
// written by MarshalJSON, or a plain object of tagged values.
func (c *Context) UnmarshalJSON(data []byte) error {
	var aux struct {
		Fields      json.RawMessage   `json:"fields"`
		Requester   string            `json:"requester"`
		Timestamp   time.Time         `json:"timestamp"`
		Environment map[string]string `json:"environment"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	fields, err := decodeFields(aux.Fields)
	if err != nil {
		return err
	}

	*c = Context{
		Fields:      fields,
		Requester:   aux.Requester,
		Timestamp:   aux.Timestamp,
		Environment: aux.Environment,
	}
	return nil
}

func decodeFields(raw json.RawMessage) (ast.Map, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return ast.Map{}, nil
	}

	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Kind == ast.KindMap.String() {
		v, err := ast.UnmarshalValue(raw)
		if err != nil {
			return nil, fmt.Errorf("context fields: %w", err)
		}
		return v.(ast.Map), nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("context fields: %w", err)
	}
	fields := make(ast.Map, len(entries))
	for k, item := range entries {
		v, err := ast.UnmarshalValue(item)
		if err != nil {
			return nil, fmt.Errorf("context field %q: %w", k, err)
		}
		fields[k] = v
	}
	return fields, nil
}
