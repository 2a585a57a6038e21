package evidence

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// Subject kinds of a decision.
const (
	SubjectPolicy    = "policy"
	SubjectPolicySet = "policy_set"
	SubjectAll       = "all"
)

// DecisionRecord is one compliance decision. Records are immutable once
// stored.
type DecisionRecord struct {
	// Identity
	ID        string `json:"id"`                   // UUID v4
	RequestID string `json:"request_id,omitempty"` // HTTP request id

	// Timestamps
	EvaluatedAt time.Time `json:"evaluated_at"` // Context timestamp
	RecordedAt  time.Time `json:"recorded_at"`  // When the record was built

	// Where the decision came from
	Source        string `json:"source"`         // "api" or "cli"
	BundleVersion string `json:"bundle_version"` // Catalog version that answered

	// What was evaluated
	Requester   string `json:"requester,omitempty"`
	SubjectKind string `json:"subject_kind"`      // policy, policy_set or all
	Subject     string `json:"subject,omitempty"` // Policy or set name

	// Outcome
	Outcome   string           `json:"outcome"`
	Compliant bool             `json:"compliant"`
	Policies  []PolicyDecision `json:"policies"`
	Skipped   []string         `json:"skipped,omitempty"`

	// Context
	ContextHash string          `json:"context_hash"`      // SHA-256 of the full context
	Context     json.RawMessage `json:"context,omitempty"` // Fields, redacted
}

// ExemptionIDs lists the exemptions that applied to the decision.
func (r *DecisionRecord) ExemptionIDs() []string {
	var ids []string
	for _, p := range r.Policies {
		if p.ExemptionID != "" {
			ids = append(ids, p.ExemptionID)
		}
	}
	return ids
}

// ViolationCount is the number of failed rules across all policies.
func (r *DecisionRecord) ViolationCount() int {
	n := 0
	for _, p := range r.Policies {
		n += len(p.Violations)
	}
	return n
}

// PolicyDecision is the outcome for one policy within a decision.
type PolicyDecision struct {
	PolicyID    string            `json:"policy_id"`
	Policy      string            `json:"policy"`
	Outcome     string            `json:"outcome"`
	ExemptionID string            `json:"exemption_id,omitempty"`
	Violations  []ViolationRecord `json:"violations,omitempty"`
}

// ViolationRecord is one failed rule.
type ViolationRecord struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Details  string `json:"details"`
}

// Query defines filter parameters for querying decision records.
type Query struct {
	// Time range over EvaluatedAt
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	Requester     string `json:"requester,omitempty"`
	SubjectKind   string `json:"subject_kind,omitempty"`
	Subject       string `json:"subject,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
	BundleVersion string `json:"bundle_version,omitempty"`
	PolicyID      string `json:"policy_id,omitempty"` // Any policy in the decision
	Compliant     *bool  `json:"compliant,omitempty"`
	Exempted      bool   `json:"exempted,omitempty"` // Only decisions where an exemption applied

	// Pagination
	Limit  int `json:"limit,omitempty"`  // Max records to return
	Offset int `json:"offset,omitempty"` // Skip N records

	// Sorting
	SortBy    string `json:"sort_by,omitempty"`    // "evaluated_at", "recorded_at"
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Matches reports whether r passes the query filters. Pagination and sorting
// are not considered.
func (q *Query) Matches(r *DecisionRecord) bool {
	if q.StartTime != nil && r.EvaluatedAt.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.EvaluatedAt.After(*q.EndTime) {
		return false
	}
	if q.Requester != "" && r.Requester != q.Requester {
		return false
	}
	if q.SubjectKind != "" && r.SubjectKind != q.SubjectKind {
		return false
	}
	if q.Subject != "" && r.Subject != q.Subject {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	if q.BundleVersion != "" && r.BundleVersion != q.BundleVersion {
		return false
	}
	if q.Compliant != nil && r.Compliant != *q.Compliant {
		return false
	}
	if q.Exempted && len(r.ExemptionIDs()) == 0 {
		return false
	}
	if q.PolicyID != "" {
		found := false
		for _, p := range r.Policies {
			if p.PolicyID == q.PolicyID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Storage defines the interface for decision log backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a record.
	Store(ctx context.Context, record *DecisionRecord) error

	// Query retrieves records matching the query filters.
	// Returns an empty slice if no records match.
	Query(ctx context.Context, query *Query) ([]*DecisionRecord, error)

	// QueryStream returns matching records on a channel for large result
	// sets. Both channels are closed when the query completes; errCh
	// carries at most one error.
	QueryStream(ctx context.Context, query *Query) (<-chan *DecisionRecord, <-chan error, error)

	// Count returns the number of records matching the query filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes records matching the query filters and returns how
	// many were removed. Used by retention.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Exporter writes decision records in one format.
type Exporter interface {
	Export(ctx context.Context, records []*DecisionRecord, w io.Writer) error
}
