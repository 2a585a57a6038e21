package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/tribune/pkg/evidence"
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config SQLiteConfig
	logger *slog.Logger

	insertStmt *sql.Stmt
	closeOnce  sync.Once
}

// NewSQLiteStorage creates a new SQLite storage backend.
// It creates the schema on first use and runs in WAL mode.
func NewSQLiteStorage(config SQLiteConfig) (*SQLiteStorage, error) {
	if config.Path == "" {
		return nil, evidence.NewStorageError(BackendSQLite, "open", fmt.Errorf("db path cannot be empty"))
	}
	if config.Driver == "" {
		config.Driver = DriverModernc
	}
	if config.Driver != DriverModernc && config.Driver != DriverMattn {
		return nil, evidence.NewStorageError(BackendSQLite, "open", fmt.Errorf("unsupported sqlite driver %q", config.Driver))
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "evidence.storage.sqlite")

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d",
		config.Path, int(config.BusyTimeout.Milliseconds()))

	db, err := sql.Open(config.Driver, dsn)
	if err != nil {
		return nil, evidence.NewStorageError(BackendSQLite, "open", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.insertStmt, err = db.Prepare(insertDecision)
	if err != nil {
		db.Close()
		return nil, evidence.NewStorageError(BackendSQLite, "prepare_insert", err)
	}

	logger.Info("SQLite decision log initialized",
		"path", config.Path,
		"driver", config.Driver,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStorage) initialize() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return evidence.NewStorageError(BackendSQLite, "enable_wal", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return evidence.NewStorageError(BackendSQLite, "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return evidence.NewStorageError(BackendSQLite, "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return evidence.NewStorageError(BackendSQLite, "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return evidence.NewStorageError(BackendSQLite, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return evidence.NewStorageError(BackendSQLite, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Store persists a decision record.
func (s *SQLiteStorage) Store(ctx context.Context, record *evidence.DecisionRecord) error {
	policies, err := json.Marshal(record.Policies)
	if err != nil {
		return evidence.NewStorageError(BackendSQLite, "store", err)
	}
	skipped, err := json.Marshal(record.Skipped)
	if err != nil {
		return evidence.NewStorageError(BackendSQLite, "store", err)
	}

	var contextVal interface{}
	if len(record.Context) > 0 {
		contextVal = string(record.Context)
	}

	_, err = s.insertStmt.ExecContext(ctx,
		record.ID, record.RequestID,
		record.EvaluatedAt.UnixNano(), record.RecordedAt.UnixNano(),
		record.Source, record.BundleVersion,
		record.Requester, record.SubjectKind, record.Subject,
		record.Outcome, record.Compliant, len(record.ExemptionIDs()) > 0,
		policyIDs(record), string(policies), string(skipped),
		record.ContextHash, contextVal,
	)
	if err != nil {
		return evidence.NewStorageError(BackendSQLite, "store", err)
	}
	return nil
}

// Query retrieves decision records matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.DecisionRecord, error) {
	sqlQuery, args := s.selectQuery(query)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, evidence.NewStorageError(BackendSQLite, "query", err)
	}
	defer rows.Close()

	records := []*evidence.DecisionRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, evidence.NewStorageError(BackendSQLite, "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError(BackendSQLite, "query", err)
	}
	return records, nil
}

// QueryStream streams matching records. The channels are closed when the
// query completes or errors.
func (s *SQLiteStorage) QueryStream(ctx context.Context, query *evidence.Query) (<-chan *evidence.DecisionRecord, <-chan error, error) {
	sqlQuery, args := s.selectQuery(query)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, nil, evidence.NewStorageError(BackendSQLite, "query_stream", err)
	}

	recordsCh := make(chan *evidence.DecisionRecord, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordsCh)
		defer close(errCh)
		defer rows.Close()

		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				errCh <- evidence.NewStorageError(BackendSQLite, "scan", err)
				return
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- evidence.NewStorageError(BackendSQLite, "query_stream", err)
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of records matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	whereClause, args := buildWhereClause(query)
	sqlQuery := "SELECT COUNT(*) FROM decisions" + whereClause

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, evidence.NewStorageError(BackendSQLite, "count", err)
	}
	return count, nil
}

// Delete removes records matching the query filters and returns how many
// were removed. Pagination and sorting are ignored.
func (s *SQLiteStorage) Delete(ctx context.Context, query *evidence.Query) (int64, error) {
	whereClause, args := buildWhereClause(query)
	result, err := s.db.ExecContext(ctx, "DELETE FROM decisions"+whereClause, args...)
	if err != nil {
		return 0, evidence.NewStorageError(BackendSQLite, "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, evidence.NewStorageError(BackendSQLite, "delete", err)
	}
	return count, nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.insertStmt.Close()
		if cerr := s.db.Close(); cerr != nil {
			err = evidence.NewStorageError(BackendSQLite, "close", cerr)
			return
		}
		s.logger.Info("SQLite decision log closed")
	})
	return err
}

func (s *SQLiteStorage) selectQuery(query *evidence.Query) (string, []interface{}) {
	whereClause, args := buildWhereClause(query)

	// Sort fields were validated against query.ValidSortFields.
	sortBy := "evaluated_at"
	if query.SortBy != "" {
		sortBy = query.SortBy
	}
	sortOrder := "DESC"
	if strings.EqualFold(query.SortOrder, "asc") {
		sortOrder = "ASC"
	}

	sqlQuery := selectDecisions + whereClause + fmt.Sprintf(" ORDER BY %s %s, id %s", sortBy, sortOrder, sortOrder)

	limit := -1
	if query.Limit > 0 {
		limit = query.Limit
	}
	sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}
	return sqlQuery, args
}

// buildWhereClause returns " WHERE ..." (or "") and its arguments.
func buildWhereClause(query *evidence.Query) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if query.StartTime != nil {
		conditions = append(conditions, "evaluated_at >= ?")
		args = append(args, query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "evaluated_at <= ?")
		args = append(args, query.EndTime.UnixNano())
	}

	for _, f := range []struct {
		column string
		value  string
	}{
		{"requester", query.Requester},
		{"subject_kind", query.SubjectKind},
		{"subject", query.Subject},
		{"outcome", query.Outcome},
		{"bundle_version", query.BundleVersion},
	} {
		if f.value != "" {
			conditions = append(conditions, f.column+" = ?")
			args = append(args, f.value)
		}
	}

	if query.PolicyID != "" {
		conditions = append(conditions, "policy_ids LIKE ? ESCAPE '\\'")
		args = append(args, "%,"+escapeLike(query.PolicyID)+",%")
	}
	if query.Compliant != nil {
		conditions = append(conditions, "compliant = ?")
		args = append(args, *query.Compliant)
	}
	if query.Exempted {
		conditions = append(conditions, "exempted = 1")
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func policyIDs(record *evidence.DecisionRecord) string {
	var b strings.Builder
	b.WriteString(",")
	for _, p := range record.Policies {
		b.WriteString(p.PolicyID)
		b.WriteString(",")
	}
	return b.String()
}

func scanRecord(rows *sql.Rows) (*evidence.DecisionRecord, error) {
	var (
		record                  evidence.DecisionRecord
		evaluatedAt, recordedAt int64
		policies, skipped       string
		contextVal              sql.NullString
	)
	err := rows.Scan(
		&record.ID, &record.RequestID,
		&evaluatedAt, &recordedAt,
		&record.Source, &record.BundleVersion,
		&record.Requester, &record.SubjectKind, &record.Subject,
		&record.Outcome, &record.Compliant,
		&policies, &skipped,
		&record.ContextHash, &contextVal,
	)
	if err != nil {
		return nil, err
	}

	record.EvaluatedAt = time.Unix(0, evaluatedAt).UTC()
	record.RecordedAt = time.Unix(0, recordedAt).UTC()
	if err := json.Unmarshal([]byte(policies), &record.Policies); err != nil {
		return nil, fmt.Errorf("decode policies: %w", err)
	}
	if err := json.Unmarshal([]byte(skipped), &record.Skipped); err != nil {
		return nil, fmt.Errorf("decode skipped: %w", err)
	}
	if contextVal.Valid {
		record.Context = json.RawMessage(contextVal.String)
	}
	return &record, nil
}
