package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mercator-hq/tribune/pkg/evidence"
	"mercator-hq/tribune/pkg/evidence/query"
)

// DecisionsResponse is a page of the decision log.
type DecisionsResponse struct {
	Total   int64                      `json:"total"`
	Records []*evidence.DecisionRecord `json:"records"`
}

// handleDecisions serves GET /v1/decisions. Filters are query parameters
// named like the evidence.Query JSON fields; times are RFC 3339.
func (a *API) handleDecisions(w http.ResponseWriter, r *http.Request) {
	q, err := parseDecisionQuery(r.URL.Query())
	if err == nil {
		err = query.Validate(q)
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	query.ApplyDefaults(q)

	total, err := a.store.Count(r.Context(), q)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	records, err := a.store.Query(r.Context(), q)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, DecisionsResponse{Total: total, Records: records})
}

func parseDecisionQuery(v url.Values) (*evidence.Query, error) {
	q := &evidence.Query{
		Requester:     v.Get("requester"),
		SubjectKind:   v.Get("subject_kind"),
		Subject:       v.Get("subject"),
		Outcome:       v.Get("outcome"),
		BundleVersion: v.Get("bundle_version"),
		PolicyID:      v.Get("policy_id"),
		SortBy:        v.Get("sort_by"),
		SortOrder:     v.Get("sort_order"),
	}

	var errs []error
	parseTime := func(name string) *time.Time {
		s := v.Get(name)
		if s == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return nil
		}
		return &t
	}
	parseInt := func(name string) int {
		s := v.Get(name)
		if s == "" {
			return 0
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: not an integer", name))
		}
		return n
	}
	parseBool := func(name string) *bool {
		s := v.Get(name)
		if s == "" {
			return nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: not a boolean", name))
			return nil
		}
		return &b
	}

	q.StartTime = parseTime("start_time")
	q.EndTime = parseTime("end_time")
	q.Limit = parseInt("limit")
	q.Offset = parseInt("offset")
	q.Compliant = parseBool("compliant")
	if exempted := parseBool("exempted"); exempted != nil {
		q.Exempted = *exempted
	}

	return q, errors.Join(errs...)
}
