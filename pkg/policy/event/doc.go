// Package event defines the immutable events that make up Tribune's history.
//
// Every change to a policy, policy set or exemption is recorded as an Event:
// an envelope (id, aggregate id and type, per-aggregate sequence, timestamp,
// actor, correlation and causation ids) around a typed Payload. Event types
// are dotted strings such as "policy.created" or "exemption.granted".
//
// The first event of every aggregate stream is that aggregate's creation
// event:
//
//   - policy:     policy.created
//   - policy_set: policy_set.created
//   - exemption:  exemption.granted
//
// Encode and Decode convert events to and from Records, the storage form
// with a JSON payload, using the registry of payload types in this package.
package event
