package parser

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/template"
)

// document is one decoded bundle file.
type document struct {
	file string
	root yamlBundle
}

// builder turns decoded documents into domain objects. It resolves
// references across every document it holds and accumulates errors instead
// of stopping at the first one.
type builder struct {
	file      string
	errs      ErrorList
	maxDepth  int
	now       time.Time
	templates *template.Engine

	docs   []document
	bundle *Bundle
}

func newBuilder(maxDepth int, now time.Time, templates *template.Engine) *builder {
	return &builder{
		maxDepth:  maxDepth,
		now:       now,
		templates: templates,
		bundle:    &Bundle{},
	}
}

func (b *builder) fail(kind error, n *yaml.Node, format string, args ...any) {
	loc := Location{File: b.file}
	if n != nil {
		loc.Line, loc.Column = n.Line, n.Column
	}
	b.errs.Add(kind, loc, format, args...)
}

// add decodes one file. Syntax errors are recorded and the file skipped.
func (b *builder) add(file string, data []byte) {
	b.file = file
	b.bundle.Sources = append(b.bundle.Sources, file)

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		b.errs.Errors = append(b.errs.Errors, &Error{
			Kind:       ErrSyntax,
			Message:    err.Error(),
			Location:   Location{File: file},
			Suggestion: "check indentation, colons and quotes",
		})
		return
	}
	var doc document
	doc.file = file
	if root.Kind != 0 {
		if err := root.Decode(&doc.root); err != nil {
			b.fail(ErrStructure, &root, "%v", err)
			return
		}
	}
	b.docs = append(b.docs, doc)
}

// build resolves policies first so sets and exemptions in any file can
// reference them.
func (b *builder) build() (*Bundle, error) {
	for _, doc := range b.docs {
		b.file = doc.file
		for i := range doc.root.Policies {
			if p := b.policy(&doc.root.Policies[i]); p != nil {
				b.bundle.Policies = append(b.bundle.Policies, p)
			}
		}
	}
	for _, doc := range b.docs {
		b.file = doc.file
		for i := range doc.root.PolicySets {
			if s := b.policySet(&doc.root.PolicySets[i]); s != nil {
				b.bundle.Sets = append(b.bundle.Sets, s)
			}
		}
		for i := range doc.root.Exemptions {
			if e := b.exemption(&doc.root.Exemptions[i]); e != nil {
				b.bundle.Exemptions = append(b.bundle.Exemptions, e)
			}
		}
	}
	if err := b.errs.ToError(); err != nil {
		return nil, err
	}
	return b.bundle, nil
}

func (b *builder) id(n *yaml.Node, declared, kind, name string) uuid.UUID {
	if declared == "" {
		return DeriveID(kind, name)
	}
	id, err := uuid.Parse(declared)
	if err != nil {
		b.fail(ErrStructure, n, "%s %q: invalid id %q", kind, name, declared)
		return uuid.Nil
	}
	return id
}

func (b *builder) policy(n *yaml.Node) *domain.Policy {
	mark := len(b.errs.Errors)

	var yp yamlPolicy
	if err := n.Decode(&yp); err != nil {
		b.fail(ErrStructure, n, "policy: %v", err)
		return nil
	}
	if yp.Name == "" {
		b.fail(ErrStructure, n, "policy needs a name")
		return nil
	}
	id := b.id(n, yp.ID, "policy", yp.Name)
	for _, existing := range b.bundle.Policies {
		if existing.Name == yp.Name || existing.ID == id {
			b.fail(ErrDuplicate, n, "policy %q is defined twice", yp.Name)
			return nil
		}
	}

	var p *domain.Policy
	if yp.Template != nil {
		if len(yp.Rules) > 0 {
			b.fail(ErrStructure, n, "policy %q sets both rules and template", yp.Name)
			return nil
		}
		if p = b.instantiate(n, &yp); p == nil {
			return nil
		}
		p.ID = id
	} else {
		p = domain.NewPolicy(id, yp.Name, yp.Description, "bundle", b.now)
		for i := range yp.Rules {
			if rule, ok := b.rule(&yp.Rules[i]); ok {
				p.Rules = append(p.Rules, rule)
			}
		}
	}

	if yp.CreatedBy != "" {
		p.Metadata.CreatedBy = yp.CreatedBy
	}
	if yp.Version > 0 {
		p.Version = yp.Version
	}
	if yp.Status != "" {
		if status, ok := parseStatus(yp.Status); ok {
			p.Status = status
		} else {
			b.fail(ErrStructure, n, "policy %q: unknown status %q", yp.Name, yp.Status)
		}
	}
	if yp.Enforcement != "" {
		level, err := domain.ParseEnforcementLevel(yp.Enforcement)
		if err != nil {
			b.fail(ErrStructure, n, "policy %q: %v", yp.Name, err)
		}
		p.EnforcementLevel = level
	}
	if yp.Target != nil {
		p.Target = b.target(n, yp.Target)
	}
	p.EffectiveDate = b.optionalTime(n, "effective_date", yp.EffectiveDate)
	p.ExpiryDate = b.optionalTime(n, "expiry_date", yp.ExpiryDate)
	if p.EffectiveDate != nil && p.ExpiryDate != nil && !p.ExpiryDate.After(*p.EffectiveDate) {
		b.fail(ErrStructure, n, "policy %q: expiry_date must be after effective_date", yp.Name)
	}
	if len(yp.Tags) > 0 {
		p.Metadata.Tags = yp.Tags
	}
	p.Metadata.ComplianceStandards = yp.ComplianceStandards
	p.Metadata.DocumentationURL = yp.DocumentationURL

	if len(b.errs.Errors) > mark {
		return nil
	}
	if err := p.Validate(); err != nil {
		b.fail(ErrStructure, n, "policy %q: %v", yp.Name, err)
		return nil
	}
	return p
}

func (b *builder) instantiate(n *yaml.Node, yp *yamlPolicy) *domain.Policy {
	params := map[string]ast.Value{}
	if yp.Template.Params.Kind != 0 {
		v, ok := b.value(&yp.Template.Params)
		if !ok {
			return nil
		}
		m, isMap := v.(ast.Map)
		if !isMap {
			b.fail(ErrStructure, &yp.Template.Params, "template params must be a mapping")
			return nil
		}
		params = m
	}
	p, err := b.templates.Instantiate(yp.Template.Name, params, yp.Name, yp.Description)
	if err != nil {
		kind := ErrStructure
		if errors.Is(err, template.ErrTemplateNotFound) {
			kind = ErrReference
		}
		b.fail(kind, n, "policy %q: %v", yp.Name, err)
		return nil
	}
	return p
}

func (b *builder) rule(n *yaml.Node) (domain.Rule, bool) {
	var yr yamlRule
	if err := n.Decode(&yr); err != nil {
		b.fail(ErrStructure, n, "rule: %v", err)
		return domain.Rule{}, false
	}
	if yr.ID == "" {
		b.fail(ErrStructure, n, "rule needs an id")
		return domain.Rule{}, false
	}

	rule := domain.Rule{
		ID:           yr.ID,
		Name:         yr.Name,
		Description:  yr.Description,
		Type:         domain.RuleTypeConstraint,
		Severity:     domain.SeverityMedium,
		ErrorMessage: yr.Message,
		Remediation:  yr.Remediation,
	}
	if rule.Name == "" {
		rule.Name = yr.ID
	}
	ok := true
	if yr.Type != "" {
		switch t := domain.RuleType(strings.ToLower(yr.Type)); t {
		case domain.RuleTypeConstraint, domain.RuleTypeRequirement, domain.RuleTypeValidation, domain.RuleTypeAuthorization:
			rule.Type = t
		default:
			b.fail(ErrStructure, n, "rule %q: unknown type %q", yr.ID, yr.Type)
			ok = false
		}
	}
	if yr.Severity != "" {
		sev, err := domain.ParseSeverity(yr.Severity)
		if err != nil {
			b.fail(ErrStructure, n, "rule %q: %v", yr.ID, err)
			ok = false
		}
		rule.Severity = sev
	}
	if yr.When.Kind == 0 {
		b.fail(ErrStructure, n, "rule %q has no when expression", yr.ID)
		return domain.Rule{}, false
	}
	if rule.Expression = b.expression(&yr.When, 1); rule.Expression == nil {
		ok = false
	}
	return rule, ok
}

func (b *builder) target(n *yaml.Node, yt *yamlTarget) domain.Target {
	switch kind := domain.TargetKind(strings.ToLower(yt.Kind)); kind {
	case domain.TargetGlobal, "":
		return domain.GlobalTarget()
	case domain.TargetOrganization:
		return domain.OrganizationTarget(b.uuidField(n, "organization_id", yt.OrganizationID))
	case domain.TargetOrganizationUnit:
		return domain.OrganizationUnitTarget(b.uuidField(n, "unit_id", yt.UnitID))
	case domain.TargetRole:
		return domain.RoleTarget(yt.Role)
	case domain.TargetResource:
		return domain.ResourceTarget(domain.ResourceType(yt.Resource))
	case domain.TargetOperation:
		return domain.OperationTarget(domain.OperationType(yt.Operation))
	case domain.TargetComposite:
		members := make([]domain.Target, 0, len(yt.Members))
		for i := range yt.Members {
			members = append(members, b.target(n, &yt.Members[i]))
		}
		return domain.CompositeTarget(members...)
	default:
		b.fail(ErrStructure, n, "unknown target kind %q", yt.Kind)
		return domain.GlobalTarget()
	}
}

func (b *builder) uuidField(n *yaml.Node, name, raw string) uuid.UUID {
	id, err := uuid.Parse(raw)
	if err != nil {
		b.fail(ErrStructure, n, "%s: invalid uuid %q", name, raw)
	}
	return id
}

func (b *builder) policySet(n *yaml.Node) *domain.PolicySet {
	mark := len(b.errs.Errors)

	var ys yamlPolicySet
	if err := n.Decode(&ys); err != nil {
		b.fail(ErrStructure, n, "policy set: %v", err)
		return nil
	}
	if ys.Name == "" {
		b.fail(ErrStructure, n, "policy set needs a name")
		return nil
	}
	id := b.id(n, ys.ID, "policy_set", ys.Name)
	if _, dup := b.bundle.Set(ys.Name); dup {
		b.fail(ErrDuplicate, n, "policy set %q is defined twice", ys.Name)
		return nil
	}

	createdBy := ys.CreatedBy
	if createdBy == "" {
		createdBy = "bundle"
	}
	set := domain.NewPolicySet(id, ys.Name, ys.Description, createdBy, b.now)
	if ys.Composition != "" {
		rule, err := domain.ParseCompositionRule(ys.Composition)
		if err != nil {
			b.fail(ErrStructure, n, "policy set %q: %v", ys.Name, err)
		}
		set.Composition = rule
	}
	if ys.ConflictResolution != "" {
		strategy, err := domain.ParseConflictResolution(ys.ConflictResolution)
		if err != nil {
			b.fail(ErrStructure, n, "policy set %q: %v", ys.Name, err)
		}
		set.ConflictResolution = strategy
	}
	if ys.Status != "" {
		if status, ok := parseStatus(ys.Status); ok {
			set.Status = status
		} else {
			b.fail(ErrStructure, n, "policy set %q: unknown status %q", ys.Name, ys.Status)
		}
	}
	for _, ref := range ys.Policies {
		p, ok := b.bundle.Policy(ref)
		if !ok {
			b.fail(ErrReference, n, "policy set %q: unknown policy %q", ys.Name, ref)
			continue
		}
		if !set.AddPolicy(p.ID) {
			b.fail(ErrDuplicate, n, "policy set %q lists %q twice", ys.Name, ref)
		}
	}
	if set.Composition.Kind == domain.ComposeAtLeast && set.Composition.Threshold > len(set.Policies) {
		b.fail(ErrStructure, n, "policy set %q: at_least(%d) exceeds its %d policies",
			ys.Name, set.Composition.Threshold, len(set.Policies))
	}

	if len(b.errs.Errors) > mark {
		return nil
	}
	return set
}

var conditionOperators = []domain.ConditionOperator{
	domain.ConditionEquals,
	domain.ConditionNotEquals,
	domain.ConditionGreaterThan,
	domain.ConditionLessThan,
	domain.ConditionContains,
	domain.ConditionNotContains,
}

func (b *builder) exemption(n *yaml.Node) *domain.Exemption {
	mark := len(b.errs.Errors)

	var ye yamlExemption
	if err := n.Decode(&ye); err != nil {
		b.fail(ErrStructure, n, "exemption: %v", err)
		return nil
	}
	policy, ok := b.bundle.Policy(ye.Policy)
	if !ok {
		b.fail(ErrReference, n, "exemption references unknown policy %q", ye.Policy)
		return nil
	}
	if ye.Reason == "" || ye.ApprovedBy == "" {
		b.fail(ErrStructure, n, "exemption for %q needs reason and approved_by", ye.Policy)
		return nil
	}

	from := b.requiredTime(n, "valid_from", ye.ValidFrom)
	until := b.requiredTime(n, "valid_until", ye.ValidUntil)
	if !from.IsZero() && !until.IsZero() && !until.After(from) {
		b.fail(ErrStructure, n, "exemption for %q: valid_until must be after valid_from", ye.Policy)
	}
	approvedAt := from
	if at := b.optionalTime(n, "approved_at", ye.ApprovedAt); at != nil {
		approvedAt = *at
	}

	e := &domain.Exemption{
		ID:             b.id(n, ye.ID, "exemption", policy.Name+"/"+ye.Reason+"/"+ye.ValidFrom),
		PolicyID:       policy.ID,
		Reason:         ye.Reason,
		Justification:  ye.Justification,
		RiskAcceptance: ye.RiskAcceptance,
		ApprovedBy:     ye.ApprovedBy,
		ApprovedAt:     approvedAt,
		ValidFrom:      from,
		ValidUntil:     until,
		Scope:          domain.ExemptionScope{Kind: domain.ScopeGlobal},
		Status:         domain.ExemptionStatus{State: domain.ExemptionActive},
	}
	if ye.Scope != nil {
		e.Scope = b.scope(n, ye.Scope)
	}
	for i := range ye.Conditions {
		c := &ye.Conditions[i]
		op := domain.ConditionOperator(strings.ToLower(c.Operator))
		if !containsOperator(op) {
			b.fail(ErrStructure, n, "exemption condition on %q: unknown operator %q", c.Field, c.Operator)
			continue
		}
		v, ok := b.value(&c.Value)
		if !ok {
			continue
		}
		e.Conditions = append(e.Conditions, domain.ExemptionCondition{Field: c.Field, Operator: op, Value: v})
	}

	if len(b.errs.Errors) > mark {
		return nil
	}
	return e
}

func containsOperator(op domain.ConditionOperator) bool {
	for _, known := range conditionOperators {
		if op == known {
			return true
		}
	}
	return false
}

func (b *builder) scope(n *yaml.Node, ys *yamlScope) domain.ExemptionScope {
	switch kind := domain.ScopeKind(strings.ToLower(ys.Kind)); kind {
	case domain.ScopeGlobal, "":
		return domain.ExemptionScope{Kind: domain.ScopeGlobal}
	case domain.ScopeOrganization:
		return domain.ExemptionScope{Kind: kind, OrganizationID: b.uuidField(n, "organization_id", ys.OrganizationID)}
	case domain.ScopeUser:
		return domain.ExemptionScope{Kind: kind, User: ys.User}
	case domain.ScopeResource:
		return domain.ExemptionScope{Kind: kind, Resource: ys.Resource}
	case domain.ScopeOperation:
		return domain.ExemptionScope{Kind: kind, Operation: domain.OperationType(ys.Operation)}
	default:
		b.fail(ErrStructure, n, "unknown exemption scope %q", ys.Kind)
		return domain.ExemptionScope{Kind: domain.ScopeGlobal}
	}
}

// timeLayouts are tried in order when parsing bundle timestamps.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func (b *builder) optionalTime(n *yaml.Node, field, raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := parseTime(raw)
	if err != nil {
		b.fail(ErrStructure, n, "%s: invalid time %q", field, raw)
		return nil
	}
	return &t
}

func (b *builder) requiredTime(n *yaml.Node, field, raw string) time.Time {
	if raw == "" {
		b.fail(ErrStructure, n, "%s is required", field)
		return time.Time{}
	}
	if t := b.optionalTime(n, field, raw); t != nil {
		return *t
	}
	return time.Time{}
}

func parseStatus(s string) (domain.PolicyStatus, bool) {
	switch status := domain.PolicyStatus(strings.ToLower(s)); status {
	case domain.StatusDraft, domain.StatusUnderReview, domain.StatusApproved, domain.StatusActive,
		domain.StatusSuspended, domain.StatusRevoked, domain.StatusArchived:
		return status, true
	}
	return "", false
}

// context decodes an evaluation context document.
func (b *builder) context(file string, data []byte) (domain.Context, error) {
	b.file = file
	var yc yamlContext
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return domain.Context{}, &Error{Kind: ErrSyntax, Message: err.Error(), Location: Location{File: file}}
	}

	fields := ast.Map{}
	if yc.Fields.Kind != 0 {
		v, ok := b.value(&yc.Fields)
		if ok {
			m, isMap := v.(ast.Map)
			if !isMap {
				b.fail(ErrStructure, &yc.Fields, "fields must be a mapping")
			}
			fields = m
		}
	}
	at := b.now
	if t := b.optionalTime(nil, "timestamp", yc.Timestamp); t != nil {
		at = *t
	}
	if err := b.errs.ToError(); err != nil {
		return domain.Context{}, err
	}

	ctx := domain.NewContext(fields, yc.Requester, at)
	for k, v := range yc.Environment {
		ctx = ctx.WithEnvironment(k, v)
	}
	return ctx, nil
}
