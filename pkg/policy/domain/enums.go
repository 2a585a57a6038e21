package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Severity ranks how serious a rule failure is. Values are ordered.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = []string{"info", "low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "severity(" + strconv.Itoa(int(s)) + ")"
}

// ParseSeverity parses a case-insensitive severity name.
func ParseSeverity(s string) (Severity, error) {
	for i, name := range severityNames {
		if strings.EqualFold(s, name) {
			return Severity(i), nil
		}
	}
	return 0, unknownEnum("severity", s)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// EnforcementLevel says how strictly a policy is applied. Values are ordered
// from least to most restrictive.
type EnforcementLevel int

const (
	EnforcementAdvisory EnforcementLevel = iota
	EnforcementSoft
	EnforcementHard
	EnforcementCritical
)

var enforcementNames = []string{"advisory", "soft", "hard", "critical"}

func (l EnforcementLevel) String() string {
	if l >= 0 && int(l) < len(enforcementNames) {
		return enforcementNames[l]
	}
	return "enforcement(" + strconv.Itoa(int(l)) + ")"
}

// ParseEnforcementLevel parses a case-insensitive enforcement level name.
func ParseEnforcementLevel(s string) (EnforcementLevel, error) {
	for i, name := range enforcementNames {
		if strings.EqualFold(s, name) {
			return EnforcementLevel(i), nil
		}
	}
	return 0, unknownEnum("enforcement level", s)
}

func (l EnforcementLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *EnforcementLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseEnforcementLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// PolicyStatus is the lifecycle state of a policy or policy set.
type PolicyStatus string

const (
	StatusDraft       PolicyStatus = "draft"
	StatusUnderReview PolicyStatus = "under_review"
	StatusApproved    PolicyStatus = "approved"
	StatusActive      PolicyStatus = "active"
	StatusSuspended   PolicyStatus = "suspended"
	StatusRevoked     PolicyStatus = "revoked"
	StatusArchived    PolicyStatus = "archived"
)

// policyTransitions is the allowed-transition table for policies.
var policyTransitions = map[PolicyStatus][]PolicyStatus{
	StatusDraft:       {StatusUnderReview},
	StatusUnderReview: {StatusApproved, StatusDraft},
	StatusApproved:    {StatusActive},
	StatusActive:      {StatusSuspended, StatusRevoked},
	StatusSuspended:   {StatusActive, StatusRevoked},
	StatusRevoked:     {StatusArchived},
}

// CanTransitionTo reports whether the table allows moving from s to next.
func (s PolicyStatus) CanTransitionTo(next PolicyStatus) bool {
	for _, allowed := range policyTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RuleType classifies what a rule expresses.
type RuleType string

const (
	RuleTypeConstraint    RuleType = "constraint"
	RuleTypeRequirement   RuleType = "requirement"
	RuleTypeValidation    RuleType = "validation"
	RuleTypeAuthorization RuleType = "authorization"
)

// ConflictResolution selects how conflicting policies are ordered or merged.
type ConflictResolution string

const (
	ResolveMostRestrictive  ConflictResolution = "most_restrictive"
	ResolveLeastRestrictive ConflictResolution = "least_restrictive"
	ResolveFirstWins        ConflictResolution = "first_wins"
	ResolveLastWins         ConflictResolution = "last_wins"
	ResolveFailOnConflict   ConflictResolution = "fail_on_conflict"
)

// ParseConflictResolution validates a strategy name.
func ParseConflictResolution(s string) (ConflictResolution, error) {
	switch r := ConflictResolution(strings.ToLower(s)); r {
	case ResolveMostRestrictive, ResolveLeastRestrictive, ResolveFirstWins, ResolveLastWins, ResolveFailOnConflict:
		return r, nil
	}
	return "", unknownEnum("conflict resolution", s)
}

// CompositionKind names a rule for combining member outcomes.
type CompositionKind string

const (
	ComposeAll      CompositionKind = "all"
	ComposeAny      CompositionKind = "any"
	ComposeMajority CompositionKind = "majority"
	ComposeAtLeast  CompositionKind = "at_least"
)

// CompositionRule combines several boolean outcomes into one. Threshold is
// only used by ComposeAtLeast.
type CompositionRule struct {
	Kind      CompositionKind `json:"kind"`
	Threshold int             `json:"threshold,omitempty"`
}

// All, Any, Majority and AtLeast build composition rules.
func All() CompositionRule          { return CompositionRule{Kind: ComposeAll} }
func Any() CompositionRule          { return CompositionRule{Kind: ComposeAny} }
func Majority() CompositionRule     { return CompositionRule{Kind: ComposeMajority} }
func AtLeast(n int) CompositionRule { return CompositionRule{Kind: ComposeAtLeast, Threshold: n} }

// Satisfied applies the rule to compliant out of total members. All requires
// every member, Any at least one, Majority strictly more than half and
// AtLeast(n) n or more.
func (c CompositionRule) Satisfied(compliant, total int) bool {
	switch c.Kind {
	case ComposeAll:
		return compliant == total
	case ComposeAny:
		return compliant > 0
	case ComposeMajority:
		return compliant*2 > total
	case ComposeAtLeast:
		return compliant >= c.Threshold
	default:
		return false
	}
}

func (c CompositionRule) String() string {
	if c.Kind == ComposeAtLeast {
		return fmt.Sprintf("at_least(%d)", c.Threshold)
	}
	return string(c.Kind)
}

// ParseCompositionRule parses "all", "any", "majority", "at_least(n)" or
// "at_least:n".
func ParseCompositionRule(s string) (CompositionRule, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch CompositionKind(s) {
	case ComposeAll, ComposeAny, ComposeMajority:
		return CompositionRule{Kind: CompositionKind(s)}, nil
	}

	rest, ok := strings.CutPrefix(s, string(ComposeAtLeast))
	if !ok {
		return CompositionRule{}, unknownEnum("composition rule", s)
	}
	rest = strings.TrimPrefix(rest, ":")
	rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return CompositionRule{}, unknownEnum("composition rule", s)
	}
	return AtLeast(n), nil
}

// EnforcementAction is the decision applied after evaluating policies.
type EnforcementAction string

const (
	ActionAllow            EnforcementAction = "allow"
	ActionAllowWithWarning EnforcementAction = "allow_with_warning"
	ActionBlock            EnforcementAction = "block"
	ActionQuarantine       EnforcementAction = "quarantine"
	ActionRedirect         EnforcementAction = "redirect"
)

// Permits reports whether the action lets the operation proceed.
func (a EnforcementAction) Permits() bool {
	return a == ActionAllow || a == ActionAllowWithWarning
}
