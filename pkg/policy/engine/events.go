package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
)

// EvaluationPayloads converts an evaluation into the events recorded on the
// policy stream: policy.evaluated followed by either
// policy.violation_detected or policy.compliance_passed. Exempted
// evaluations produce only policy.evaluated.
func EvaluationPayloads(policy *domain.Policy, evaluation *domain.PolicyEvaluation, evalCtx domain.Context, auditID *uuid.UUID) []event.Payload {
	evaluated := event.PolicyEvaluated{
		PolicyID:        evaluation.PolicyID,
		EvaluationID:    evaluation.ID,
		ContextHash:     ContextHash(evalCtx),
		Outcome:         evaluation.Result.Outcome(),
		Violations:      domain.ViolationsOf(evaluation.Result),
		ExecutionMillis: evaluation.ExecutionTime.Milliseconds(),
		AuditID:         auditID,
	}
	if x, ok := evaluation.Result.(domain.CompliantWithExemption); ok {
		id := x.ExemptionID
		evaluated.ExemptionID = &id
		return []event.Payload{evaluated}
	}

	if violations := domain.ViolationsOf(evaluation.Result); len(violations) > 0 {
		return []event.Payload{evaluated, event.PolicyViolationDetected{
			PolicyID:          evaluation.PolicyID,
			EvaluationID:      evaluation.ID,
			Violations:        violations,
			Severity:          highestSeverity(violations),
			EnforcementAction: ActionFor(policy.EnforcementLevel, false),
			AuditID:           auditID,
		}}
	}
	return []event.Payload{evaluated, event.PolicyCompliancePassed{
		PolicyID:       evaluation.PolicyID,
		EvaluationID:   evaluation.ID,
		RulesEvaluated: len(evaluation.RuleResults),
		AuditID:        auditID,
	}}
}

// ActionFor maps a policy's enforcement level and outcome to the action an
// enforcer should take.
func ActionFor(level domain.EnforcementLevel, compliant bool) domain.EnforcementAction {
	if compliant {
		return domain.ActionAllow
	}
	switch level {
	case domain.EnforcementAdvisory, domain.EnforcementSoft:
		return domain.ActionAllowWithWarning
	case domain.EnforcementCritical:
		return domain.ActionQuarantine
	default:
		return domain.ActionBlock
	}
}

// ContextHash returns a stable digest of the context fields and requester.
// Map keys are sorted by encoding/json, so equal contexts hash equally.
func ContextHash(evalCtx domain.Context) string {
	data, err := json.Marshal(struct {
		Fields    any    `json:"fields"`
		Requester string `json:"requester"`
	}{evalCtx.Fields, evalCtx.Requester})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func highestSeverity(violations []domain.Violation) domain.Severity {
	highest := domain.SeverityInfo
	for _, v := range violations {
		if v.Severity > highest {
			highest = v.Severity
		}
	}
	return highest
}
