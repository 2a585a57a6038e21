package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the decision log schema.
// Timestamps are Unix nanoseconds. policy_ids holds the decision's policy
// ids wrapped in commas (",p1,p2,") so a single LIKE finds one of them.
const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,

    evaluated_at INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL,

    source TEXT NOT NULL,
    bundle_version TEXT NOT NULL,

    requester TEXT NOT NULL,
    subject_kind TEXT NOT NULL,
    subject TEXT NOT NULL,

    outcome TEXT NOT NULL,
    compliant INTEGER NOT NULL,
    exempted INTEGER NOT NULL,
    policy_ids TEXT NOT NULL,
    policies TEXT NOT NULL,
    skipped TEXT NOT NULL,

    context_hash TEXT NOT NULL,
    context TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_evaluated_at ON decisions(evaluated_at);
CREATE INDEX IF NOT EXISTS idx_decisions_requester ON decisions(requester);
CREATE INDEX IF NOT EXISTS idx_decisions_subject ON decisions(subject_kind, subject);
CREATE INDEX IF NOT EXISTS idx_decisions_outcome ON decisions(outcome);
CREATE INDEX IF NOT EXISTS idx_decisions_request_id ON decisions(request_id);
`

// InsertSchemaVersion records the schema version once.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const insertDecision = `
INSERT INTO decisions (
    id, request_id, evaluated_at, recorded_at, source, bundle_version,
    requester, subject_kind, subject, outcome, compliant, exempted,
    policy_ids, policies, skipped, context_hash, context
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectDecisions = `
SELECT id, request_id, evaluated_at, recorded_at, source, bundle_version,
    requester, subject_kind, subject, outcome, compliant,
    policies, skipped, context_hash, context
FROM decisions`
