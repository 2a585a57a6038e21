package template

import (
	"errors"
	"testing"
	"time"

	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/engine"
)

var now = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func newEngine() *Engine {
	return NewEngine(WithClock(func() time.Time { return now }))
}

func TestEngine_Builtins(t *testing.T) {
	e := newEngine()

	list := e.List()
	if len(list) != 3 {
		t.Fatalf("List() returned %d templates, want 3", len(list))
	}
	want := []string{PKICertificate, Authorization, Compliance}
	for i, tmpl := range list {
		if tmpl.Name != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, tmpl.Name, want[i])
		}
	}

	if got := e.ByCategory("PKI"); len(got) != 1 || got[0].Name != PKICertificate {
		t.Errorf("ByCategory(PKI) = %v", got)
	}
	if got := e.ByTag("rbac"); len(got) != 1 || got[0].Name != Authorization {
		t.Errorf("ByTag(rbac) = %v", got)
	}
	if got := e.ByTag("nothing"); len(got) != 0 {
		t.Errorf("ByTag(nothing) = %v, want empty", got)
	}
}

func TestEngine_InstantiateDefaults(t *testing.T) {
	e := newEngine()

	policy, err := e.Instantiate(PKICertificate, nil, "Web Certs", "certificates for web")
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}
	if policy.Status != domain.StatusDraft {
		t.Errorf("Status = %v, want Draft", policy.Status)
	}
	if policy.EnforcementLevel != domain.EnforcementHard {
		t.Errorf("EnforcementLevel = %v, want hard", policy.EnforcementLevel)
	}
	if policy.Metadata.CreatedBy != "template:"+PKICertificate {
		t.Errorf("CreatedBy = %q", policy.Metadata.CreatedBy)
	}
	if policy.Target.Kind != domain.TargetResource || policy.Target.Resource != domain.ResourceCertificate {
		t.Errorf("Target = %+v, want certificate resource", policy.Target)
	}
	if len(policy.Rules) != 3 {
		t.Fatalf("Rules = %d, want 3", len(policy.Rules))
	}

	keySize, _ := policy.Rule("min-key-size")
	if want := (ast.GreaterThanOrEqual{Field: "key_size", Value: ast.Integer(2048)}); keySize.Expression != want {
		t.Errorf("min-key-size expression = %v, want %v", keySize.Expression, want)
	}
	if keySize.ErrorMessage != "Key size must be at least 2048 bits" {
		t.Errorf("ErrorMessage = %q", keySize.ErrorMessage)
	}

	algs, _ := policy.Rule("allowed-algorithms")
	in, ok := algs.Expression.(ast.In)
	if !ok {
		t.Fatalf("allowed-algorithms expression = %T, want ast.In", algs.Expression)
	}
	if len(in.Values) != 2 || in.Values[0] != ast.String("RSA") || in.Values[1] != ast.String("ECDSA") {
		t.Errorf("In values = %v, want [RSA ECDSA]", in.Values)
	}
	if algs.Description != "Algorithm must be one of RSA, ECDSA" {
		t.Errorf("Description = %q", algs.Description)
	}
}

func TestEngine_InstantiatedPolicyEvaluates(t *testing.T) {
	e := newEngine()
	policy, err := e.Instantiate(PKICertificate, map[string]ast.Value{
		"min_key_size": ast.Integer(4096),
	}, "Strict Certs", "")
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}

	rules := engine.NewRuleEvaluator(nil, nil)
	rule, _ := policy.Rule("min-key-size")

	tests := []struct {
		name    string
		keySize int64
		want    bool
	}{
		{"below override", 2048, false},
		{"at override", 4096, true},
		{"above override", 8192, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := domain.NewContext(map[string]ast.Value{"key_size": ast.Integer(tt.keySize)}, "alice", now)
			got, err := rules.Evaluate(rule.Expression, ctx)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_InstantiateErrors(t *testing.T) {
	tests := []struct {
		name      string
		template  string
		params    map[string]ast.Value
		wantErr   error
		parameter string
	}{
		{
			name:     "unknown template",
			template: "Nope",
			wantErr:  ErrTemplateNotFound,
		},
		{
			name:      "missing required",
			template:  Authorization,
			wantErr:   ErrMissingParameter,
			parameter: "required_role",
		},
		{
			name:      "wrong type",
			template:  PKICertificate,
			params:    map[string]ast.Value{"min_key_size": ast.String("big")},
			wantErr:   ErrInvalidParameterValue,
			parameter: "min_key_size",
		},
		{
			name:      "wrong list element type",
			template:  PKICertificate,
			params:    map[string]ast.Value{"allowed_algorithms": ast.List{ast.Integer(1)}},
			wantErr:   ErrInvalidParameterValue,
			parameter: "allowed_algorithms",
		},
		{
			name:      "below minimum",
			template:  PKICertificate,
			params:    map[string]ast.Value{"min_key_size": ast.Integer(512)},
			wantErr:   ErrValidationFailed,
			parameter: "min_key_size",
		},
		{
			name:      "above maximum",
			template:  PKICertificate,
			params:    map[string]ast.Value{"max_validity_days": ast.Integer(900)},
			wantErr:   ErrValidationFailed,
			parameter: "max_validity_days",
		},
		{
			name:      "zero audit frequency",
			template:  Compliance,
			params:    map[string]ast.Value{"compliance_standard": ast.String("PCI-DSS"), "audit_frequency_days": ast.Integer(0)},
			wantErr:   ErrValidationFailed,
			parameter: "audit_frequency_days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newEngine().Instantiate(tt.template, tt.params, "p", "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Instantiate() error = %v, want %v", err, tt.wantErr)
			}
			if tt.parameter == "" {
				return
			}
			var perr *ParameterError
			if !errors.As(err, &perr) {
				t.Fatalf("error %T is not a *ParameterError", err)
			}
			if perr.Parameter != tt.parameter {
				t.Errorf("Parameter = %q, want %q", perr.Parameter, tt.parameter)
			}
		})
	}
}

func TestEngine_InstantiateRequired(t *testing.T) {
	policy, err := newEngine().Instantiate(Compliance, map[string]ast.Value{
		"compliance_standard": ast.String("HIPAA"),
	}, "HIPAA", "")
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}
	if policy.EnforcementLevel != domain.EnforcementSoft {
		t.Errorf("EnforcementLevel = %v, want soft", policy.EnforcementLevel)
	}
	if policy.Target.Kind != domain.TargetGlobal {
		t.Errorf("Target = %v, want global", policy.Target.Kind)
	}

	audit, _ := policy.Rule("audit-frequency")
	if want := (ast.LessThanOrEqual{Field: "days_since_audit", Value: ast.Integer(90)}); audit.Expression != want {
		t.Errorf("audit-frequency expression = %v, want %v", audit.Expression, want)
	}
	if audit.Remediation != "Schedule a HIPAA audit" {
		t.Errorf("Remediation = %q", audit.Remediation)
	}
}

func TestEngine_RegisterCustom(t *testing.T) {
	expr := ast.And{Children: []ast.Expression{
		ast.StartsWith{Field: "region", Prefix: "${region}"},
		ast.Not{Child: ast.EndsWith{Field: "host", Suffix: "${suffix}"}},
	}}

	e := newEngine()
	e.Register(&Template{
		Name:     "Region Lock",
		Category: "Network",
		Parameters: []Parameter{
			{Name: "region", Type: TypeString, Required: true},
			{Name: "suffix", Type: TypeString, Default: ast.String(".internal")},
		},
		BaseRules: []domain.Rule{
			{
				ID:           "region",
				Name:         "Region",
				Expression:   expr,
				ErrorMessage: "Region must be ${region}, saw ${unknown}",
			},
		},
	})

	tmpl, err := e.Get("Region Lock")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tmpl.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("Register() left the template ID unset")
	}

	policy, err := e.Instantiate("Region Lock", map[string]ast.Value{"region": ast.String("eu-")}, "EU", "")
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}
	rule := policy.Rules[0]
	and := rule.Expression.(ast.And)
	if got := and.Children[0].(ast.StartsWith).Prefix; got != "eu-" {
		t.Errorf("Prefix = %q, want eu-", got)
	}
	if got := and.Children[1].(ast.Not).Child.(ast.EndsWith).Suffix; got != ".internal" {
		t.Errorf("Suffix = %q, want .internal", got)
	}
	if rule.ErrorMessage != "Region must be eu-, saw ${unknown}" {
		t.Errorf("ErrorMessage = %q", rule.ErrorMessage)
	}
}

func TestParameterType_Parse(t *testing.T) {
	tests := []struct {
		typ     ParameterType
		raw     string
		want    ast.Value
		wantErr bool
	}{
		{TypeString, "PCI-DSS", ast.String("PCI-DSS"), false},
		{TypeInteger, "2048", ast.Integer(2048), false},
		{TypeInteger, "lots", nil, true},
		{TypeFloat, "0.5", ast.Float(0.5), false},
		{TypeBoolean, "true", ast.Bool(true), false},
		{TypeBoolean, "maybe", nil, true},
		{TypeStringList, "RSA, ECDSA,", ast.List{ast.String("RSA"), ast.String("ECDSA")}, false},
		{TypeIntegerList, "1,2", ast.List{ast.Integer(1), ast.Integer(2)}, false},
		{TypeIntegerList, "1,x", nil, true},
		{TypeDuration, "72h", ast.String("72h"), false},
		{TypeDuration, "3 days", nil, true},
		{TypeDateTime, "2026-05-04T10:30:00Z", ast.NewDateTime(now), false},
		{ParameterType("blob"), "x", nil, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ)+"/"+tt.raw, func(t *testing.T) {
			got, err := tt.typ.Parse(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !ast.ValuesEqual(got, tt.want) {
				t.Errorf("Parse() = %v, want %v", got, tt.want)
			}
			if !tt.typ.Accepts(got) {
				t.Errorf("Accepts(Parse(%q)) = false", tt.raw)
			}
		})
	}
}

func TestParameterType_Accepts(t *testing.T) {
	tests := []struct {
		typ  ParameterType
		v    ast.Value
		want bool
	}{
		{TypeString, ast.Integer(1), false},
		{TypeInteger, ast.Float(1), false},
		{TypeStringList, ast.List{}, true},
		{TypeStringList, ast.String("RSA"), false},
		{TypeDuration, ast.String("soon"), false},
		{TypeDuration, ast.Integer(60), false},
		{TypeDateTime, ast.String("2026-05-04"), false},
	}

	for _, tt := range tests {
		if got := tt.typ.Accepts(tt.v); got != tt.want {
			t.Errorf("%s.Accepts(%v) = %v, want %v", tt.typ, tt.v, got, tt.want)
		}
	}
}
