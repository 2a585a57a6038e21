// Package repository reconstructs aggregates from the event store and
// appends the events commands produce.
//
// A Repository pairs an eventstore.Store with the aggregate's fold:
//
//	repo := repository.NewPolicyRepository(store)
//	policy, err := repo.Load(ctx, id)
//	if errors.Is(err, repository.ErrNotFound) {
//	    // no history for id
//	}
//
// Save appends events with optimistic concurrency. Events whose Seq is set
// must continue the stored stream exactly; a creation event must start a
// new one. A concurrent writer surfaces as eventstore.ErrSequenceConflict,
// and the caller reloads and retries its command.
//
// The repository holds no state between calls. Per-aggregate ordering is
// provided by the store.
package repository
