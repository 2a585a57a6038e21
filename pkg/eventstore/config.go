package eventstore

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
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

// SQLiteConfig contains configuration for the SQLite backend.
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

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:        "data/events.db",
		Driver:      DriverModernc,
		BusyTimeout: 5 * time.Second,
	}
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

func buildOptions(component string, opts []Option) options {
	o := options{recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", component)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("mercator-hq/tribune/eventstore")
	}
	return o
}
