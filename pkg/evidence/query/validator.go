package query

import (
	"fmt"

	"mercator-hq/tribune/pkg/evidence"
)

const (
	// DefaultLimit is the default number of records to return if not specified.
	DefaultLimit = 100

	// MaxLimit is the maximum number of records that can be returned in a single query.
	MaxLimit = 10000

	// DefaultSortBy orders records by evaluation time.
	DefaultSortBy = "evaluated_at"
)

// ValidSortFields contains the fields that can be used for sorting. The
// names are also SQLite column names, which is what makes them safe to
// interpolate.
var ValidSortFields = map[string]bool{
	"evaluated_at": true,
	"recorded_at":  true,
}

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

var validSubjectKinds = map[string]bool{
	evidence.SubjectPolicy:    true,
	evidence.SubjectPolicySet: true,
	evidence.SubjectAll:       true,
}

// Validate returns a *evidence.QueryError for the first invalid parameter.
func Validate(q *evidence.Query) error {
	if q.Limit < 0 {
		return &evidence.QueryError{Field: "limit", Message: fmt.Sprintf("must be >= 0, got %d", q.Limit)}
	}
	if q.Limit > MaxLimit {
		return &evidence.QueryError{Field: "limit", Message: fmt.Sprintf("must be <= %d, got %d", MaxLimit, q.Limit)}
	}
	if q.Offset < 0 {
		return &evidence.QueryError{Field: "offset", Message: fmt.Sprintf("must be >= 0, got %d", q.Offset)}
	}
	if q.SortBy != "" && !ValidSortFields[q.SortBy] {
		return &evidence.QueryError{Field: "sort_by", Message: fmt.Sprintf("unknown field %q", q.SortBy)}
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return &evidence.QueryError{Field: "sort_order", Message: fmt.Sprintf("%q must be 'asc' or 'desc'", q.SortOrder)}
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return &evidence.QueryError{Field: "start_time", Message: "must not be after end_time"}
	}
	if q.SubjectKind != "" && !validSubjectKinds[q.SubjectKind] {
		return &evidence.QueryError{Field: "subject_kind", Message: fmt.Sprintf("unknown kind %q", q.SubjectKind)}
	}
	return nil
}

// ApplyDefaults applies default values to a query.
func ApplyDefaults(q *evidence.Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = DefaultSortBy
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}
