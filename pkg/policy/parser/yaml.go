package parser

import (
	"gopkg.in/yaml.v3"
)

// yamlBundle is the top-level document. Sections stay as nodes so each
// entry keeps its position.
type yamlBundle struct {
	Policies   []yaml.Node `yaml:"policies"`
	PolicySets []yaml.Node `yaml:"policy_sets"`
	Exemptions []yaml.Node `yaml:"exemptions"`
}

type yamlPolicy struct {
	ID                  string       `yaml:"id"`
	Name                string       `yaml:"name"`
	Description         string       `yaml:"description"`
	Version             uint32       `yaml:"version"`
	Status              string       `yaml:"status"`
	Enforcement         string       `yaml:"enforcement"`
	Target              *yamlTarget  `yaml:"target"`
	EffectiveDate       string       `yaml:"effective_date"`
	ExpiryDate          string       `yaml:"expiry_date"`
	CreatedBy           string       `yaml:"created_by"`
	Tags                []string     `yaml:"tags"`
	ComplianceStandards []string     `yaml:"compliance_standards"`
	DocumentationURL    string       `yaml:"documentation_url"`
	Rules               []yaml.Node  `yaml:"rules"`
	Template            *yamlUseTmpl `yaml:"template"`
}

type yamlRule struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Type        string    `yaml:"type"`
	Severity    string    `yaml:"severity"`
	Message     string    `yaml:"message"`
	Remediation string    `yaml:"remediation"`
	When        yaml.Node `yaml:"when"`
}

type yamlUseTmpl struct {
	Name   string    `yaml:"name"`
	Params yaml.Node `yaml:"params"`
}

type yamlTarget struct {
	Kind           string       `yaml:"kind"`
	OrganizationID string       `yaml:"organization_id"`
	UnitID         string       `yaml:"unit_id"`
	Role           string       `yaml:"role"`
	Resource       string       `yaml:"resource"`
	Operation      string       `yaml:"operation"`
	Members        []yamlTarget `yaml:"members"`
}

type yamlPolicySet struct {
	ID                 string   `yaml:"id"`
	Name               string   `yaml:"name"`
	Description        string   `yaml:"description"`
	Status             string   `yaml:"status"`
	Policies           []string `yaml:"policies"`
	Composition        string   `yaml:"composition"`
	ConflictResolution string   `yaml:"conflict_resolution"`
	CreatedBy          string   `yaml:"created_by"`
}

type yamlExemption struct {
	ID             string          `yaml:"id"`
	Policy         string          `yaml:"policy"`
	Reason         string          `yaml:"reason"`
	Justification  string          `yaml:"justification"`
	RiskAcceptance string          `yaml:"risk_acceptance"`
	ApprovedBy     string          `yaml:"approved_by"`
	ApprovedAt     string          `yaml:"approved_at"`
	ValidFrom      string          `yaml:"valid_from"`
	ValidUntil     string          `yaml:"valid_until"`
	Scope          *yamlScope      `yaml:"scope"`
	Conditions     []yamlCondition `yaml:"conditions"`
}

type yamlScope struct {
	Kind           string `yaml:"kind"`
	OrganizationID string `yaml:"organization_id"`
	User           string `yaml:"user"`
	Resource       string `yaml:"resource"`
	Operation      string `yaml:"operation"`
}

type yamlCondition struct {
	Field    string    `yaml:"field"`
	Operator string    `yaml:"operator"`
	Value    yaml.Node `yaml:"value"`
}

// yamlContext is an evaluation context file.
type yamlContext struct {
	Requester   string            `yaml:"requester"`
	Timestamp   string            `yaml:"timestamp"`
	Environment map[string]string `yaml:"environment"`
	Fields      yaml.Node         `yaml:"fields"`
}
