package template

import (
	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
)

// Names of the built-in templates.
const (
	PKICertificate = "PKI Certificate Policy"
	Authorization  = "Authorization Policy"
	Compliance     = "Compliance Policy"
)

// Builtins returns fresh copies of the built-in templates.
func Builtins() []*Template {
	return []*Template{pkiTemplate(), authorizationTemplate(), complianceTemplate()}
}

func pkiTemplate() *Template {
	return &Template{
		Name:        PKICertificate,
		Description: "Standard template for certificate issuance policies",
		Category:    "PKI",
		Tags:        []string{"pki", "certificate"},
		Parameters: []Parameter{
			{
				Name:        "min_key_size",
				Description: "Minimum key size in bits",
				Type:        TypeInteger,
				Default:     ast.Integer(2048),
				Validation:  ast.GreaterThanOrEqual{Field: "value", Value: ast.Integer(1024)},
			},
			{
				Name:        "max_validity_days",
				Description: "Maximum certificate validity in days",
				Type:        TypeInteger,
				Default:     ast.Integer(365),
				Validation:  ast.LessThanOrEqual{Field: "value", Value: ast.Integer(825)},
			},
			{
				Name:        "allowed_algorithms",
				Description: "List of allowed algorithms",
				Type:        TypeStringList,
				Default:     ast.List{ast.String("RSA"), ast.String("ECDSA")},
			},
		},
		BaseRules: []domain.Rule{
			{
				ID:           "min-key-size",
				Name:         "Minimum Key Size",
				Description:  "Key size must be at least ${min_key_size} bits",
				Type:         domain.RuleTypeConstraint,
				Expression:   ast.GreaterThanOrEqual{Field: "key_size", Value: ast.String("${min_key_size}")},
				Severity:     domain.SeverityCritical,
				ErrorMessage: "Key size must be at least ${min_key_size} bits",
				Remediation:  "Regenerate the key with at least ${min_key_size} bits",
			},
			{
				ID:           "max-validity-days",
				Name:         "Maximum Validity Period",
				Description:  "Validity period must not exceed ${max_validity_days} days",
				Type:         domain.RuleTypeConstraint,
				Expression:   ast.LessThanOrEqual{Field: "validity_days", Value: ast.String("${max_validity_days}")},
				Severity:     domain.SeverityHigh,
				ErrorMessage: "Validity period must not exceed ${max_validity_days} days",
				Remediation:  "Request a validity period of ${max_validity_days} days or less",
			},
			{
				ID:           "allowed-algorithms",
				Name:         "Allowed Algorithms",
				Description:  "Algorithm must be one of ${allowed_algorithms}",
				Type:         domain.RuleTypeConstraint,
				Expression:   ast.In{Field: "algorithm", Values: []ast.Value{ast.String("${allowed_algorithms}")}},
				Severity:     domain.SeverityCritical,
				ErrorMessage: "Algorithm must be one of ${allowed_algorithms}",
				Remediation:  "Use an approved algorithm",
			},
		},
		Target:             domain.ResourceTarget(domain.ResourceCertificate),
		DefaultEnforcement: domain.EnforcementHard,
	}
}

func authorizationTemplate() *Template {
	return &Template{
		Name:        Authorization,
		Description: "Template for role-based access control",
		Category:    "Authorization",
		Tags:        []string{"authorization", "rbac"},
		Parameters: []Parameter{
			{
				Name:        "required_role",
				Description: "Role required for access",
				Type:        TypeString,
				Required:    true,
			},
			{
				Name:        "min_role_level",
				Description: "Minimum role level required",
				Type:        TypeInteger,
				Default:     ast.Integer(1),
				Validation:  ast.GreaterThanOrEqual{Field: "value", Value: ast.Integer(0)},
			},
		},
		BaseRules: []domain.Rule{
			{
				ID:           "required-role",
				Name:         "Required Role",
				Description:  "Requester must hold the ${required_role} role",
				Type:         domain.RuleTypeAuthorization,
				Expression:   ast.Equal{Field: "role", Value: ast.String("${required_role}")},
				Severity:     domain.SeverityHigh,
				ErrorMessage: "Role ${required_role} is required",
			},
			{
				ID:           "min-role-level",
				Name:         "Minimum Role Level",
				Description:  "Role level must be at least ${min_role_level}",
				Type:         domain.RuleTypeAuthorization,
				Expression:   ast.GreaterThanOrEqual{Field: "role_level", Value: ast.String("${min_role_level}")},
				Severity:     domain.SeverityMedium,
				ErrorMessage: "Role level must be at least ${min_role_level}",
			},
		},
		DefaultEnforcement: domain.EnforcementHard,
	}
}

func complianceTemplate() *Template {
	return &Template{
		Name:        Compliance,
		Description: "Template for regulatory compliance requirements",
		Category:    "Compliance",
		Tags:        []string{"compliance", "audit"},
		Parameters: []Parameter{
			{
				Name:        "compliance_standard",
				Description: "Compliance standard (e.g., PCI-DSS, HIPAA)",
				Type:        TypeString,
				Required:    true,
			},
			{
				Name:        "audit_frequency_days",
				Description: "Frequency of compliance audits in days",
				Type:        TypeInteger,
				Default:     ast.Integer(90),
				Validation:  ast.GreaterThan{Field: "value", Value: ast.Integer(0)},
			},
		},
		BaseRules: []domain.Rule{
			{
				ID:           "compliance-standard",
				Name:         "Compliance Standard",
				Description:  "Resource must be certified for ${compliance_standard}",
				Type:         domain.RuleTypeRequirement,
				Expression:   ast.Contains{Field: "certifications", Value: ast.String("${compliance_standard}")},
				Severity:     domain.SeverityHigh,
				ErrorMessage: "Missing ${compliance_standard} certification",
				Remediation:  "Complete the ${compliance_standard} certification",
			},
			{
				ID:           "audit-frequency",
				Name:         "Audit Frequency",
				Description:  "Last audit must be at most ${audit_frequency_days} days ago",
				Type:         domain.RuleTypeRequirement,
				Expression:   ast.LessThanOrEqual{Field: "days_since_audit", Value: ast.String("${audit_frequency_days}")},
				Severity:     domain.SeverityMedium,
				ErrorMessage: "Audit is older than ${audit_frequency_days} days",
				Remediation:  "Schedule a ${compliance_standard} audit",
			},
		},
		DefaultEnforcement: domain.EnforcementSoft,
	}
}
