package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/evidence"
	"mercator-hq/tribune/pkg/evidence/recorder"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/engine"
	"mercator-hq/tribune/pkg/policy/manager"
	"mercator-hq/tribune/pkg/policy/parser"
	"mercator-hq/tribune/pkg/security/auth"
)

const (
	// APIPrefix is the path prefix of every API route.
	APIPrefix = "/v1/"

	// MaxRequestBytes bounds the body of an evaluation request.
	MaxRequestBytes = 1 << 20
)

// API serves the loaded catalog and evaluates contexts against it.
type API struct {
	catalog   *manager.Catalog
	evaluator *engine.Evaluator
	parser    *parser.Parser
	clock     func() time.Time

	decisions DecisionLog
	store     evidence.Storage
}

// DecisionLog receives every successful evaluation.
type DecisionLog interface {
	RecordDecision(ctx context.Context, d recorder.Decision) error
}

// NewAPI creates an API over catalog. evaluator should be kept in sync with
// the catalog's exemptions, see manager.SyncExemptions.
func NewAPI(catalog *manager.Catalog, evaluator *engine.Evaluator) *API {
	return &API{
		catalog:   catalog,
		evaluator: evaluator,
		parser:    parser.NewParser(),
		clock:     time.Now,
	}
}

// WithDecisions records evaluations to log and serves GET /v1/decisions
// from store. Either may be nil.
func (a *API) WithDecisions(log DecisionLog, store evidence.Storage) *API {
	a.decisions = log
	a.store = store
	return a
}

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/catalog", a.handleCatalog)
	if a.store != nil {
		mux.HandleFunc("GET /v1/decisions", a.handleDecisions)
	}
	mux.HandleFunc("POST /v1/evaluate", a.handleEvaluate)
}

// CatalogResponse describes the installed bundle.
type CatalogResponse struct {
	Version    string        `json:"version"`
	Source     string        `json:"source"`
	LoadedAt   time.Time     `json:"loaded_at"`
	Policies   []CatalogItem `json:"policies"`
	Sets       []CatalogItem `json:"policy_sets"`
	Exemptions int           `json:"exemptions"`
}

// CatalogItem is a policy or policy set in the catalog.
type CatalogItem struct {
	ID     uuid.UUID           `json:"id"`
	Name   string              `json:"name"`
	Status domain.PolicyStatus `json:"status"`
}

// EvaluateRequest selects what to evaluate. With neither Policy nor Set,
// every effective policy is evaluated.
type EvaluateRequest struct {
	Policy  string          `json:"policy,omitempty"`
	Set     string          `json:"set,omitempty"`
	Context json.RawMessage `json:"context"`
}

// EvaluateResponse is the outcome of an evaluation request.
type EvaluateResponse struct {
	BundleVersion string         `json:"bundle_version"`
	Set           string         `json:"set,omitempty"`
	Outcome       domain.Outcome `json:"outcome"`
	Compliant     bool           `json:"compliant"`
	Policies      []PolicyResult `json:"policies"`
	Skipped       []string       `json:"skipped,omitempty"`
}

// PolicyResult is the outcome for one policy.
type PolicyResult struct {
	Policy      string             `json:"policy"`
	PolicyID    uuid.UUID          `json:"policy_id"`
	Outcome     domain.Outcome     `json:"outcome"`
	ExemptionID *uuid.UUID         `json:"exemption_id,omitempty"`
	Violations  []domain.Violation `json:"violations,omitempty"`
}

func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	snap := a.catalog.Snapshot()
	if snap == nil {
		writeError(w, r, http.StatusServiceUnavailable, manager.ErrNotLoaded.Error())
		return
	}

	resp := CatalogResponse{
		Version:    snap.Version,
		Source:     snap.Source,
		LoadedAt:   snap.LoadedAt,
		Policies:   make([]CatalogItem, 0, len(snap.Bundle.Policies)),
		Sets:       make([]CatalogItem, 0, len(snap.Bundle.Sets)),
		Exemptions: len(snap.Bundle.Exemptions),
	}
	for _, p := range snap.Bundle.Policies {
		resp.Policies = append(resp.Policies, CatalogItem{ID: p.ID, Name: p.Name, Status: p.Status})
	}
	for _, s := range snap.Bundle.Sets {
		resp.Sets = append(resp.Sets, CatalogItem{ID: s.ID, Name: s.Name, Status: s.Status})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	snap := a.catalog.Snapshot()
	if snap == nil {
		writeError(w, r, http.StatusServiceUnavailable, manager.ErrNotLoaded.Error())
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Policy != "" && req.Set != "" {
		writeError(w, r, http.StatusBadRequest, "policy and set are mutually exclusive")
		return
	}
	if len(req.Context) == 0 {
		writeError(w, r, http.StatusBadRequest, "context is required")
		return
	}
	// JSON is a subset of YAML, so the context document parser reads it.
	evalCtx, err := a.parser.ParseContext(req.Context, "request")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// An authenticated caller is the requester, whatever the body claims.
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		evalCtx.Requester = p.Actor
	}

	resp, status, err := a.evaluate(r, snap.Bundle, req, evalCtx)
	if err != nil {
		writeError(w, r, status, err.Error())
		return
	}
	resp.BundleVersion = snap.Version
	a.recordDecision(r, req, evalCtx, resp)
	writeJSON(w, http.StatusOK, resp)
}

// recordDecision hands the evaluation to the decision log. A failure is
// logged and never changes the response.
func (a *API) recordDecision(r *http.Request, req EvaluateRequest, evalCtx domain.Context, resp *EvaluateResponse) {
	if a.decisions == nil {
		return
	}

	d := recorder.Decision{
		RequestID:     RequestID(r.Context()),
		Source:        "api",
		BundleVersion: resp.BundleVersion,
		SubjectKind:   evidence.SubjectAll,
		Context:       evalCtx,
		Outcome:       resp.Outcome,
		Compliant:     resp.Compliant,
		Skipped:       resp.Skipped,
	}
	switch {
	case req.Set != "":
		d.SubjectKind, d.Subject = evidence.SubjectPolicySet, resp.Set
	case req.Policy != "":
		d.SubjectKind, d.Subject = evidence.SubjectPolicy, req.Policy
	}
	for _, p := range resp.Policies {
		pd := evidence.PolicyDecision{
			PolicyID: p.PolicyID.String(),
			Policy:   p.Policy,
			Outcome:  string(p.Outcome),
		}
		if p.ExemptionID != nil {
			pd.ExemptionID = p.ExemptionID.String()
		}
		for _, v := range p.Violations {
			pd.Violations = append(pd.Violations, evidence.ViolationRecord{
				RuleID:   v.RuleID,
				Severity: v.Severity.String(),
				Details:  v.Details,
			})
		}
		d.Policies = append(d.Policies, pd)
	}

	if err := a.decisions.RecordDecision(r.Context(), d); err != nil {
		slog.Default().With("component", "server.api").WarnContext(r.Context(), "decision not recorded", "error", err)
	}
}

func (a *API) evaluate(r *http.Request, bundle *parser.Bundle, req EvaluateRequest, evalCtx domain.Context) (*EvaluateResponse, int, error) {
	ctx := r.Context()
	resp := &EvaluateResponse{}

	if req.Set != "" {
		set, ok := bundle.Set(req.Set)
		if !ok {
			return nil, http.StatusNotFound, fmt.Errorf("policy set %q not found", req.Set)
		}
		members := bundle.Members(set)
		result, err := a.evaluator.EvaluateSetDetailed(ctx, members, evalCtx, set.Composition)
		if err != nil {
			return nil, evaluationStatus(err), err
		}
		for i, evaluation := range result.Members {
			resp.Policies = append(resp.Policies, policyResult(members[i], evaluation))
		}
		resp.Set = set.Name
		resp.Outcome = result.Summary().Outcome()
		resp.Compliant = domain.IsCompliant(result.Result)
		return resp, http.StatusOK, nil
	}

	policies := bundle.Policies
	if req.Policy != "" {
		policy, ok := bundle.Policy(req.Policy)
		if !ok {
			return nil, http.StatusNotFound, fmt.Errorf("policy %q not found", req.Policy)
		}
		policies = []*domain.Policy{policy}
	}

	now := a.clock()
	passed := 0
	for _, policy := range policies {
		if req.Policy == "" && !policy.IsEffective(now) {
			resp.Skipped = append(resp.Skipped, policy.Name)
			continue
		}
		evaluation, err := a.evaluator.Evaluate(ctx, policy, evalCtx)
		if err != nil {
			return nil, evaluationStatus(err), err
		}
		if domain.IsCompliant(evaluation.Result) {
			passed++
		}
		resp.Policies = append(resp.Policies, policyResult(policy, evaluation))
	}

	switch {
	case len(resp.Policies) == 0:
		return nil, http.StatusUnprocessableEntity, errors.New("no effective policies to evaluate")
	case passed == len(resp.Policies):
		resp.Outcome = domain.OutcomeCompliant
		resp.Compliant = true
	case passed == 0:
		resp.Outcome = domain.OutcomeNonCompliant
	default:
		resp.Outcome = domain.OutcomePartiallyCompliant
	}
	return resp, http.StatusOK, nil
}

func policyResult(policy *domain.Policy, evaluation *domain.PolicyEvaluation) PolicyResult {
	pr := PolicyResult{
		Policy:     policy.Name,
		PolicyID:   policy.ID,
		Outcome:    evaluation.Result.Outcome(),
		Violations: domain.ViolationsOf(evaluation.Result),
	}
	if exempt, ok := evaluation.Result.(domain.CompliantWithExemption); ok {
		pr.ExemptionID = &exempt.ExemptionID
	}
	return pr
}

// evaluationStatus maps evaluator errors to HTTP statuses. Inactive
// policies and rules that cannot be evaluated against the supplied context
// are the caller's problem.
func evaluationStatus(err error) int {
	var evalErr *engine.EvaluationError
	switch {
	case errors.Is(err, engine.ErrPolicyNotActive), errors.As(err, &evalErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
