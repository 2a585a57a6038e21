package saga

// Kind names a saga family.
type Kind string

const (
	KindApproval    Kind = "approval"
	KindEnforcement Kind = "enforcement"
	KindExemption   Kind = "exemption"
	KindAudit       Kind = "audit"
	KindComposite   Kind = "composite"
)

// Kinds lists every saga family.
var Kinds = []Kind{KindApproval, KindEnforcement, KindExemption, KindAudit, KindComposite}

// State is a node of a saga state machine.
type State string

const (
	// Lifecycle.
	StateInitiated  State = "initiated"
	StateInProgress State = "in_progress"
	StateWaiting    State = "waiting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"

	// Policy approval.
	StateDraft       State = "draft"
	StateUnderReview State = "under_review"
	StateApproved    State = "approved"
	StateRejected    State = "rejected"
	StateActive      State = "active"
	StateSuspended   State = "suspended"
	StateArchived    State = "archived"

	// Enforcement.
	StateEvaluating  State = "evaluating"
	StateEnforcing   State = "enforcing"
	StateBlocked     State = "blocked"
	StateAllowed     State = "allowed"
	StateRemediation State = "remediation"

	// Exemption.
	StateExemptionRequested   State = "exemption_requested"
	StateExemptionUnderReview State = "exemption_under_review"
	StateExemptionGranted     State = "exemption_granted"
	StateExemptionDenied      State = "exemption_denied"
	StateExemptionExpired     State = "exemption_expired"

	// Audit.
	StateAuditScheduled     State = "audit_scheduled"
	StateAuditInProgress    State = "audit_in_progress"
	StateAuditComplete      State = "audit_complete"
	StateNonCompliant       State = "non_compliant"
	StateComplianceVerified State = "compliance_verified"
)

// States lists every saga state.
var States = []State{
	StateInitiated, StateInProgress, StateWaiting, StateCompleted, StateFailed, StateCancelled,
	StateDraft, StateUnderReview, StateApproved, StateRejected, StateActive, StateSuspended, StateArchived,
	StateEvaluating, StateEnforcing, StateBlocked, StateAllowed, StateRemediation,
	StateExemptionRequested, StateExemptionUnderReview, StateExemptionGranted, StateExemptionDenied, StateExemptionExpired,
	StateAuditScheduled, StateAuditInProgress, StateAuditComplete, StateNonCompliant, StateComplianceVerified,
}

// Transition is an edge label offered to a decision-maker.
type Transition string

const (
	TransitionStart    Transition = "start"
	TransitionProgress Transition = "progress"
	TransitionComplete Transition = "complete"
	TransitionFail     Transition = "fail"
	TransitionCancel   Transition = "cancel"
	TransitionRetry    Transition = "retry"

	TransitionSubmitForReview Transition = "submit_for_review"
	TransitionApprove         Transition = "approve"
	TransitionReject          Transition = "reject"
	TransitionRequestChanges  Transition = "request_changes"
	TransitionActivate        Transition = "activate"
	TransitionSuspend         Transition = "suspend"
	TransitionArchive         Transition = "archive"

	TransitionEvaluate  Transition = "evaluate"
	TransitionEnforce   Transition = "enforce"
	TransitionAllow     Transition = "allow"
	TransitionBlock     Transition = "block"
	TransitionRemediate Transition = "remediate"

	TransitionRequestExemption Transition = "request_exemption"
	TransitionReviewExemption  Transition = "review_exemption"
	TransitionGrantExemption   Transition = "grant_exemption"
	TransitionDenyExemption    Transition = "deny_exemption"
	TransitionExpireExemption  Transition = "expire_exemption"

	TransitionScheduleAudit    Transition = "schedule_audit"
	TransitionStartAudit       Transition = "start_audit"
	TransitionCompleteAudit    Transition = "complete_audit"
	TransitionVerifyCompliance Transition = "verify_compliance"
	TransitionReportViolation  Transition = "report_violation"
)

// gate is a static allowed-transition table.
type gate map[State][]State

func (g gate) allows(from, to State) bool {
	for _, s := range g[from] {
		if s == to {
			return true
		}
	}
	return false
}
