//go:build property

package aggregate

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"mercator-hq/tribune/pkg/policy/event"
)

// membershipHistory turns a list of small integers into a set history:
// even values add member v/2, odd values remove member v/2.
func membershipHistory(setID uuid.UUID, members []uuid.UUID, ops []int) []event.Event {
	payloads := []event.Payload{event.PolicySetCreated{SetID: setID, Name: "generated"}}
	for _, op := range ops {
		member := members[(op/2)%len(members)]
		if op%2 == 0 {
			payloads = append(payloads, event.PolicyAddedToSet{SetID: setID, PolicyID: member})
		} else {
			payloads = append(payloads, event.PolicyRemovedFromSet{SetID: setID, PolicyID: member})
		}
	}
	return history(setID, payloads...)
}

// Property: folding the same history twice yields identical state, and
// folding a prefix then applying the rest equals folding the whole.
func TestReplayIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	setID := uuid.New()
	members := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	properties.Property("fold is repeatable", prop.ForAll(
		func(ops []int) bool {
			events := membershipHistory(setID, members, ops)
			first, err1 := FoldPolicySet(events)
			second, err2 := FoldPolicySet(events)
			if err1 != nil || err2 != nil {
				return false
			}
			return reflect.DeepEqual(first, second)
		},
		gen.SliceOf(gen.IntRange(0, 15)),
	))

	properties.Property("fold composes over prefixes", prop.ForAll(
		func(ops []int, cut int) bool {
			events := membershipHistory(setID, members, ops)
			cut = 1 + cut%len(events)

			whole, err := FoldPolicySet(events)
			if err != nil {
				return false
			}
			state, err := FoldPolicySet(events[:cut])
			if err != nil {
				return false
			}
			for _, e := range events[cut:] {
				if state, err = ApplyPolicySet(state, e); err != nil {
					return false
				}
			}
			return reflect.DeepEqual(whole, state)
		},
		gen.SliceOf(gen.IntRange(0, 15)),
		gen.IntRange(0, 1000),
	))

	properties.Property("members stay unique", prop.ForAll(
		func(ops []int) bool {
			set, err := FoldPolicySet(membershipHistory(setID, members, ops))
			if err != nil {
				return false
			}
			seen := make(map[uuid.UUID]bool)
			for _, id := range set.Policies {
				if seen[id] {
					return false
				}
				seen[id] = true
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 15)),
	))

	properties.TestingRun(t)
}
