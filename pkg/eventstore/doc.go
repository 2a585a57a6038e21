// Package eventstore provides the append-only, per-aggregate ordered event
// log that policy, policy set and exemption aggregates are rebuilt from.
//
// Two backends implement Store:
//   - MemoryStore keeps encoded records in process memory. It is intended
//     for tests and one-shot CLI runs.
//   - SQLiteStore persists records in a SQLite database. The pure Go
//     modernc.org/sqlite driver ("sqlite") is the default; the cgo
//     github.com/mattn/go-sqlite3 driver ("sqlite3") can be selected instead.
//
// # Ordering and concurrency
//
// Every event of an aggregate carries a 1-based sequence number. Append
// takes the sequence the caller last observed and fails with
// ErrSequenceConflict when another writer has appended in between, which
// gives optimistic concurrency per aggregate. Appends to different
// aggregates do not interfere.
//
// Both backends store events through the event package's JSON codec, so
// loaded events never alias the caller's values.
package eventstore
