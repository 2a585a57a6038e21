// Package storage provides storage backends for decision records.
//
// # Storage Backends
//
//   - SQLite: embedded database for single-node deployments. Either the
//     pure-Go modernc driver ("sqlite", default) or the cgo mattn driver
//     ("sqlite3") can be selected.
//   - Memory: in-memory storage for tests and throwaway servers.
//
// The SQLite backend runs in WAL mode with a busy timeout and a single
// writer connection. Policy results and skipped policies are stored as JSON
// text; the columns that queries filter on are stored flat and indexed.
//
// # Basic Usage
//
//	store, err := storage.New(storage.Config{
//	    Backend: storage.BackendSQLite,
//	    SQLite:  storage.SQLiteConfig{Path: "data/decisions.db"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	records, err := store.Query(ctx, &evidence.Query{Outcome: "non_compliant", Limit: 20})
package storage
