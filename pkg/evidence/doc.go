// Package evidence defines the decision log: an append-only record of every
// compliance decision served by the evaluation API.
//
// # Architecture
//
// The decision log has four parts:
//
//  1. Recorder (package recorder) turns an evaluation into a DecisionRecord
//     and writes it asynchronously
//  2. Storage (package storage) persists records in memory or SQLite
//  3. Query and export (packages query, export) read records back as JSON
//     or CSV
//  4. Retention (package retention) prunes old records on a cron schedule
//
// # Decision Records
//
// Each record captures:
//   - What was evaluated: a policy, a policy set, or every effective policy
//   - Who asked: the requester, which is the authenticated actor when API
//     keys are enabled
//   - Which bundle version answered
//   - The outcome, with per-policy results, exemptions and violations
//   - A SHA-256 hash of the evaluation context, and the context itself with
//     configured fields redacted
//
// Records are never updated. Retention is the only path that removes them.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(storage.SQLiteConfig{Path: "data/decisions.db"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	rec := recorder.NewRecorder(store, recorder.Config{AsyncBuffer: 1000})
//	defer rec.Close()
//
//	records, err := store.Query(ctx, &evidence.Query{Requester: "legacy-bot", Limit: 50})
package evidence
