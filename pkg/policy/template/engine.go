package template

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/engine"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Engine holds registered templates and instantiates policies from them.
// It is safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	templates map[string]*Template
	order     []string

	rules  *engine.RuleEvaluator
	clock  func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for policy timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine with the built-in templates registered.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		templates: make(map[string]*Template),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default().With("component", "policy.template")
	}
	e.rules = engine.NewRuleEvaluator(nil, e.logger)
	for _, t := range Builtins() {
		e.Register(t)
	}
	return e
}

// Register adds t, replacing any template with the same name.
func (e *Engine) Register(t *Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if _, exists := e.templates[t.Name]; !exists {
		e.order = append(e.order, t.Name)
	}
	e.templates[t.Name] = t
	e.logger.Debug("template registered", "template", t.Name, "parameters", len(t.Parameters))
}

// Get returns the template registered under name.
func (e *Engine) Get(name string) (*Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return t, nil
}

// List returns every template in registration order.
func (e *Engine) List() []*Template {
	return e.filter(func(*Template) bool { return true })
}

// ByCategory returns the templates of category.
func (e *Engine) ByCategory(category string) []*Template {
	return e.filter(func(t *Template) bool { return t.Category == category })
}

// ByTag returns the templates carrying tag.
func (e *Engine) ByTag(tag string) []*Template {
	return e.filter(func(t *Template) bool { return slices.Contains(t.Tags, tag) })
}

func (e *Engine) filter(keep func(*Template) bool) []*Template {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*Template
	for _, name := range e.order {
		if t := e.templates[name]; keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// Instantiate builds a Draft policy from the named template.
func (e *Engine) Instantiate(name string, params map[string]ast.Value, policyName, description string) (*domain.Policy, error) {
	t, err := e.Get(name)
	if err != nil {
		return nil, err
	}
	values, err := e.resolve(t, params)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	policy := domain.NewPolicy(uuid.New(), policyName, description, "template:"+t.Name, now)
	policy.EnforcementLevel = t.DefaultEnforcement
	policy.Metadata.Tags = slices.Clone(t.Tags)
	if t.Target.Kind != "" {
		policy.Target = t.Target
	}
	for _, base := range t.BaseRules {
		rule, err := substituteRule(t.Name, base, values)
		if err != nil {
			return nil, err
		}
		policy.Rules = append(policy.Rules, rule)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("template %q: %w", t.Name, err)
	}

	e.logger.Debug("template instantiated",
		"template", t.Name,
		"policy_id", policy.ID,
		"rules", len(policy.Rules),
	)
	return policy, nil
}

// resolve type-checks, defaults and validates the parameters.
func (e *Engine) resolve(t *Template, provided map[string]ast.Value) (map[string]ast.Value, error) {
	out := make(map[string]ast.Value, len(t.Parameters))
	for _, p := range t.Parameters {
		v, ok := provided[p.Name]
		switch {
		case ok:
			if !p.Type.Accepts(v) {
				return nil, &ParameterError{
					Template:  t.Name,
					Parameter: p.Name,
					Reason:    fmt.Sprintf("expected %s, got %s", p.Type, v.Kind()),
					Err:       ErrInvalidParameterValue,
				}
			}
			if err := e.validate(t, p, v); err != nil {
				return nil, err
			}
		case p.Default != nil:
			v = p.Default
		case p.Required:
			return nil, &ParameterError{Template: t.Name, Parameter: p.Name, Err: ErrMissingParameter}
		default:
			continue
		}
		out[p.Name] = v
	}
	return out, nil
}

func (e *Engine) validate(t *Template, p Parameter, v ast.Value) error {
	if p.Validation == nil {
		return nil
	}
	ctx := domain.NewContext(map[string]ast.Value{"value": v}, "", e.clock())
	ok, err := e.rules.Evaluate(p.Validation, ctx)
	if err != nil {
		return &ParameterError{Template: t.Name, Parameter: p.Name, Reason: err.Error(), Err: ErrValidationFailed}
	}
	if !ok {
		return &ParameterError{
			Template:  t.Name,
			Parameter: p.Name,
			Reason:    fmt.Sprintf("%s does not satisfy %s", v, p.Validation),
			Err:       ErrValidationFailed,
		}
	}
	return nil
}

func substituteRule(template string, rule domain.Rule, values map[string]ast.Value) (domain.Rule, error) {
	expr, err := substitute(template, rule.Expression, values)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("rule %q: %w", rule.ID, err)
	}
	rule.Expression = expr
	rule.Description = substituteText(rule.Description, values)
	rule.ErrorMessage = substituteText(rule.ErrorMessage, values)
	rule.Remediation = substituteText(rule.Remediation, values)
	return rule, nil
}

func substitute(template string, expr ast.Expression, values map[string]ast.Value) (ast.Expression, error) {
	value := func(v ast.Value) (ast.Value, error) { return substituteValue(template, v, values) }

	var err error
	switch e := expr.(type) {
	case ast.Equal:
		e.Value, err = value(e.Value)
		return e, err
	case ast.NotEqual:
		e.Value, err = value(e.Value)
		return e, err
	case ast.GreaterThan:
		e.Value, err = value(e.Value)
		return e, err
	case ast.GreaterThanOrEqual:
		e.Value, err = value(e.Value)
		return e, err
	case ast.LessThan:
		e.Value, err = value(e.Value)
		return e, err
	case ast.LessThanOrEqual:
		e.Value, err = value(e.Value)
		return e, err
	case ast.Contains:
		e.Value, err = value(e.Value)
		return e, err
	case ast.In:
		e.Values, err = substituteList(template, e.Values, values)
		return e, err
	case ast.NotIn:
		e.Values, err = substituteList(template, e.Values, values)
		return e, err
	case ast.And:
		e.Children, err = substituteAll(template, e.Children, values)
		return e, err
	case ast.Or:
		e.Children, err = substituteAll(template, e.Children, values)
		return e, err
	case ast.Not:
		e.Child, err = substitute(template, e.Child, values)
		return e, err
	case ast.Matches:
		e.Pattern = substituteText(e.Pattern, values)
		return e, nil
	case ast.StartsWith:
		e.Prefix = substituteText(e.Prefix, values)
		return e, nil
	case ast.EndsWith:
		e.Suffix = substituteText(e.Suffix, values)
		return e, nil
	case ast.Exists, ast.NotExists, ast.Custom:
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %T", engine.ErrUnsupportedExpression, expr)
	}
}

func substituteAll(template string, exprs []ast.Expression, values map[string]ast.Value) ([]ast.Expression, error) {
	out := make([]ast.Expression, len(exprs))
	for i, child := range exprs {
		var err error
		if out[i], err = substitute(template, child, values); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// substituteList expands a lone list placeholder into its elements.
func substituteList(template string, list []ast.Value, values map[string]ast.Value) ([]ast.Value, error) {
	if len(list) == 1 {
		v, err := substituteValue(template, list[0], values)
		if err != nil {
			return nil, err
		}
		if l, ok := v.(ast.List); ok {
			return slices.Clone([]ast.Value(l)), nil
		}
		return []ast.Value{v}, nil
	}
	out := make([]ast.Value, len(list))
	for i, v := range list {
		var err error
		if out[i], err = substituteValue(template, v, values); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func substituteValue(template string, v ast.Value, values map[string]ast.Value) (ast.Value, error) {
	s, ok := v.(ast.String)
	if !ok {
		return v, nil
	}
	name, ok := placeholderName(string(s))
	if !ok {
		return v, nil
	}
	bound, ok := values[name]
	if !ok {
		return nil, &ParameterError{Template: template, Parameter: name, Err: ErrMissingParameter}
	}
	return bound, nil
}

func placeholderName(s string) (string, bool) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return "", false
	}
	return s[2 : len(s)-1], true
}

// substituteText replaces every bound placeholder in s. Unbound placeholders
// are left as written.
func substituteText(s string, values map[string]ast.Value) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		v, ok := values[name]
		if !ok {
			return m
		}
		return text(v)
	})
}

func text(v ast.Value) string {
	switch x := v.(type) {
	case ast.String:
		return string(x)
	case ast.List:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = text(item)
		}
		return strings.Join(parts, ", ")
	default:
		return v.String()
	}
}
