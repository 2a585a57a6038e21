// Package saga implements Tribune's long-running workflows.
//
// # Overview
//
// A saga observes domain events, advances its own state, and derives the
// commands that move its workflow forward. Four workflows are provided:
//
//   - ApprovalSaga drives a policy from Draft to Active. It proposes
//     approval once both a Manager and a Director have signed off.
//   - EnforcementSaga collects the evaluation results of several policies
//     and decides an enforcement action using a CompositionRule.
//   - ExemptionSaga takes an exemption request through review. The number
//     of approvals it needs grows with the assessed RiskLevel.
//   - AuditSaga scores the compliance of a group of policies and proposes
//     suspensions for critical findings.
//
// CompositeSaga coordinates several sagas toward a shared completion
// criterion.
//
// # State and Transitions
//
// ApplyEvent is the only operation that advances committed state. Every
// saga checks a static table of allowed transitions and rejects an event
// that arrives in the wrong state with an InvalidTransitionError. Events for
// other aggregates are ignored.
//
// # Planning
//
// Each saga carries a MarkovChain of transition probabilities and state
// rewards. The chain is advisory: ExpectedValue, Rank and OptimalPath
// suggest which transition to pursue next, but they never change state and
// never bypass the transition table. The default tables can be overridden
// from configuration with ChainConfig.
//
// # Thread Safety
//
// A saga instance is not safe for concurrent use. Different instances may
// be advanced concurrently.
package saga
