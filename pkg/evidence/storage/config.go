package storage

import (
	"fmt"
	"time"

	"mercator-hq/tribune/pkg/evidence"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// SQLite driver names registered by the two supported drivers.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is "memory" or "sqlite".
	Backend string

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig
}

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver is the database/sql driver name: "sqlite" (modernc, default)
	// or "sqlite3" (mattn, requires cgo).
	Driver string

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// New opens the configured backend.
func New(cfg Config) (evidence.Storage, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStorage(), nil
	case BackendSQLite, "":
		return NewSQLiteStorage(cfg.SQLite)
	default:
		return nil, evidence.NewStorageError(cfg.Backend, "open", fmt.Errorf("unknown backend %q", cfg.Backend))
	}
}
