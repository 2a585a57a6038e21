// Package domain holds the Tribune data model: rules, policies, policy sets,
// exemptions, evaluation contexts and compliance results.
//
// Types in this package are plain values. Lifecycle changes go through the
// guarded setters (Policy.TransitionTo, Exemption.Revoke, PolicySet.AddPolicy)
// when mutating state directly, or through the reducers in package aggregate
// when rebuilding state from the event log.
//
// # Policy lifecycle
//
//	Draft -> UnderReview -> Approved -> Active <-> Suspended
//	UnderReview -> Draft
//	Active -> Revoked, Suspended -> Revoked
//	Revoked -> Archived
//
// Every other transition is rejected with an InvalidTransitionError.
//
// # Effective window
//
// A policy is effective when it is Active, its effective date (if any) is not
// in the future and its expiry date (if any) is not in the past. Only
// effective policies are evaluated.
//
// # Exemptions
//
// An exemption is usable while its status is Active and the evaluation time
// falls inside [ValidFrom, ValidUntil]. Revocation and expiry are terminal.
package domain
