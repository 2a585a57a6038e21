package query

import (
	"errors"
	"testing"
	"time"

	"mercator-hq/tribune/pkg/evidence"
)

func TestValidate(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	tests := []struct {
		name      string
		query     evidence.Query
		wantField string
	}{
		{name: "empty query", query: evidence.Query{}},
		{name: "full query", query: evidence.Query{
			StartTime: &early, EndTime: &late, Limit: MaxLimit, Offset: 5,
			SortBy: "recorded_at", SortOrder: "asc", SubjectKind: evidence.SubjectAll,
		}},
		{name: "negative limit", query: evidence.Query{Limit: -1}, wantField: "limit"},
		{name: "limit too large", query: evidence.Query{Limit: MaxLimit + 1}, wantField: "limit"},
		{name: "negative offset", query: evidence.Query{Offset: -3}, wantField: "offset"},
		{name: "unknown sort field", query: evidence.Query{SortBy: "requester; DROP TABLE decisions"}, wantField: "sort_by"},
		{name: "unknown sort order", query: evidence.Query{SortOrder: "up"}, wantField: "sort_order"},
		{name: "inverted time range", query: evidence.Query{StartTime: &late, EndTime: &early}, wantField: "start_time"},
		{name: "unknown subject kind", query: evidence.Query{SubjectKind: "bundle"}, wantField: "subject_kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.query)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			var qe *evidence.QueryError
			if !errors.As(err, &qe) {
				t.Fatalf("Validate() error = %v, want *evidence.QueryError", err)
			}
			if qe.Field != tt.wantField {
				t.Errorf("QueryError.Field = %q, want %q", qe.Field, tt.wantField)
			}
			if !errors.Is(err, evidence.ErrInvalidQuery) {
				t.Error("error does not wrap ErrInvalidQuery")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	q := &evidence.Query{}
	ApplyDefaults(q)
	if q.Limit != DefaultLimit || q.SortBy != DefaultSortBy || q.SortOrder != "desc" {
		t.Errorf("ApplyDefaults() = %+v", q)
	}

	q = &evidence.Query{Limit: 7, SortBy: "recorded_at", SortOrder: "asc"}
	ApplyDefaults(q)
	if q.Limit != 7 || q.SortBy != "recorded_at" || q.SortOrder != "asc" {
		t.Errorf("ApplyDefaults() overrode explicit values: %+v", q)
	}
}
