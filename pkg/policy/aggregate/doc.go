// Package aggregate rebuilds policy, policy set and exemption state from
// their event histories.
//
// Each Apply function is a pure reducer: it takes the prior state (nil
// before the creation event) and one event, and returns the next state
// without modifying its input. Replay projects state; it does not re-check
// lifecycle transitions, which were validated when the events were
// appended. Events that belong to another aggregate are ignored.
//
// Each Fold function replays a full history and requires the first event
// to be the aggregate's creation event:
//
//	policy, err := aggregate.FoldPolicy(events)
//	if errors.Is(err, aggregate.ErrInvalidSequence) {
//	    // the log is corrupt for this aggregate
//	}
package aggregate
