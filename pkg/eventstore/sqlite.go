package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/tribune/pkg/policy/event"
)

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the event log tables.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
    event_id TEXT PRIMARY KEY,
    aggregate_id TEXT NOT NULL,
    aggregate_type TEXT NOT NULL,
    seq INTEGER NOT NULL,
    type TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    actor TEXT NOT NULL,
    correlation_id TEXT NOT NULL,
    causation_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    UNIQUE (aggregate_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_events_aggregate_type ON events(aggregate_type, seq);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	config SQLiteConfig
	opts   options

	// mu serializes appends so the sequence check and insert are atomic
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once

	appendStmt *sql.Stmt
	loadStmt   *sql.Stmt
	headStmt   *sql.Stmt
	idsStmt    *sql.Stmt
}

// NewSQLiteStore opens (creating if needed) the database at cfg.Path.
func NewSQLiteStore(cfg SQLiteConfig, opts ...Option) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.Driver != DriverModernc && cfg.Driver != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q", cfg.Driver)
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	o := buildOptions("eventstore.sqlite", opts)

	// Open database with WAL mode and busy timeout
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, storageError(BackendSQLite, "open", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:     db,
		config: cfg,
		opts:   o,
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	o.logger.Info("SQLite event store initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
	)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return storageError(BackendSQLite, "pragma", err)
		}
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return storageError(BackendSQLite, "create_schema", err)
	}
	if _, err := s.db.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (?)", SchemaVersion); err != nil {
		return storageError(BackendSQLite, "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return storageError(BackendSQLite, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return storageError(BackendSQLite, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error
	s.appendStmt, err = s.db.Prepare(`
		INSERT INTO events (
			event_id, aggregate_id, aggregate_type, seq, type, timestamp,
			actor, correlation_id, causation_id, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return storageError(BackendSQLite, "prepare_append", err)
	}

	s.loadStmt, err = s.db.Prepare(`
		SELECT event_id, aggregate_id, aggregate_type, seq, type, timestamp,
			actor, correlation_id, causation_id, payload
		FROM events WHERE aggregate_id = ? ORDER BY seq
	`)
	if err != nil {
		return storageError(BackendSQLite, "prepare_load", err)
	}

	s.headStmt, err = s.db.Prepare("SELECT COALESCE(MAX(seq), 0) FROM events WHERE aggregate_id = ?")
	if err != nil {
		return storageError(BackendSQLite, "prepare_head", err)
	}

	s.idsStmt, err = s.db.Prepare(`
		SELECT aggregate_id FROM events
		WHERE aggregate_type = ? AND seq = 1
		ORDER BY rowid
	`)
	if err != nil {
		return storageError(BackendSQLite, "prepare_ids", err)
	}
	return nil
}

// Append adds events to the aggregate's stream inside one transaction.
func (s *SQLiteStore) Append(ctx context.Context, aggregateID uuid.UUID, expectedSeq uint64, events ...event.Event) (stored []event.Event, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "eventstore.append", trace.WithAttributes(
		attribute.String("aggregate.id", aggregateID.String()),
		attribute.Int("events", len(events)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.opts.recorder.RecordAppend(BackendSQLite, len(events), err)
	}()

	stamped, records, err := sequence(aggregateID, expectedSeq, events)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError(BackendSQLite, "begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var actual uint64
	if err := tx.StmtContext(ctx, s.headStmt).QueryRowContext(ctx, aggregateID.String()).Scan(&actual); err != nil {
		return nil, storageError(BackendSQLite, "head", err)
	}
	if actual != expectedSeq {
		return nil, &SequenceConflictError{AggregateID: aggregateID, Expected: expectedSeq, Actual: actual}
	}

	insert := tx.StmtContext(ctx, s.appendStmt)
	for _, rec := range records {
		_, err := insert.ExecContext(ctx,
			rec.EventID.String(), rec.AggregateID.String(), string(rec.AggregateType),
			int64(rec.Seq), string(rec.Type), rec.Timestamp.UnixNano(),
			rec.Actor, rec.CorrelationID.String(), rec.CausationID.String(), string(rec.Payload),
		)
		if err != nil {
			return nil, storageError(BackendSQLite, "append", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError(BackendSQLite, "commit", err)
	}

	s.opts.logger.Debug("events appended",
		"aggregate_id", aggregateID,
		"from_seq", expectedSeq+1,
		"count", len(records),
	)
	return stamped, nil
}

// Load returns the aggregate's events in sequence order.
func (s *SQLiteStore) Load(ctx context.Context, aggregateID uuid.UUID) (events []event.Event, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "eventstore.load", trace.WithAttributes(
		attribute.String("aggregate.id", aggregateID.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.opts.recorder.RecordLoad(BackendSQLite, len(events), err)
	}()

	if s.isClosed() {
		return nil, ErrStoreClosed
	}

	rows, err := s.loadStmt.QueryContext(ctx, aggregateID.String())
	if err != nil {
		return nil, storageError(BackendSQLite, "load", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageError(BackendSQLite, "scan", err)
		}
		e, err := event.Decode(rec)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(BackendSQLite, "load", err)
	}
	return events, nil
}

// AggregateIDs lists the aggregates of the given type.
func (s *SQLiteStore) AggregateIDs(ctx context.Context, aggregateType event.AggregateType) ([]uuid.UUID, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}

	rows, err := s.idsStmt.QueryContext(ctx, string(aggregateType))
	if err != nil {
		return nil, storageError(BackendSQLite, "aggregate_ids", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, storageError(BackendSQLite, "scan", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, storageError(BackendSQLite, "scan", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(BackendSQLite, "aggregate_ids", err)
	}
	return ids, nil
}

// Close closes the prepared statements and the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		for _, stmt := range []*sql.Stmt{s.appendStmt, s.loadStmt, s.headStmt, s.idsStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
		s.opts.logger.Info("SQLite event store closed", "path", s.config.Path)
	})
	return err
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func scanRecord(rows *sql.Rows) (event.Record, error) {
	var rec event.Record
	var eventID, aggregateID, correlation, cause string
	var aggregateType, eventType, payload string
	var seq, timestamp int64
	err := rows.Scan(&eventID, &aggregateID, &aggregateType, &seq, &eventType, &timestamp,
		&rec.Actor, &correlation, &cause, &payload)
	if err != nil {
		return rec, err
	}

	ids := make([]uuid.UUID, 4)
	for i, raw := range []string{eventID, aggregateID, correlation, cause} {
		if ids[i], err = uuid.Parse(raw); err != nil {
			return rec, errors.Join(fmt.Errorf("invalid uuid %q", raw), err)
		}
	}

	rec.EventID = ids[0]
	rec.AggregateID = ids[1]
	rec.CorrelationID = ids[2]
	rec.CausationID = ids[3]
	rec.AggregateType = event.AggregateType(aggregateType)
	rec.Seq = uint64(seq)
	rec.Type = event.Type(eventType)
	rec.Timestamp = time.Unix(0, timestamp).UTC()
	rec.Payload = []byte(payload)
	return rec, nil
}
