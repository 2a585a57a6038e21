package conflict

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/policy/ast"
	"mercator-hq/tribune/pkg/policy/domain"
)

// Recorder receives conflict measurements.
type Recorder interface {
	RecordConflict(conflictType domain.ConflictType)
}

type nopRecorder struct{}

func (nopRecorder) RecordConflict(domain.ConflictType) {}

// Resolver detects conflicts between policies and resolves them with a
// fixed strategy. It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	strategy domain.ConflictResolution
	clock    func() time.Time
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the time source for DetectedAt.
func WithClock(clock func() time.Time) Option {
	return func(r *Resolver) { r.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) { r.recorder = rec }
}

// NewResolver creates a resolver using strategy.
func NewResolver(strategy domain.ConflictResolution, opts ...Option) *Resolver {
	r := &Resolver{
		strategy: strategy,
		clock:    time.Now,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default().With("component", "policy.conflict")
	}
	return r
}

// Strategy returns the resolution strategy.
func (r *Resolver) Strategy() domain.ConflictResolution {
	return r.strategy
}

// DetectConflicts returns at most one conflict per unordered pair of
// policies, in pair order.
func (r *Resolver) DetectConflicts(policies []*domain.Policy) []domain.PolicyConflict {
	var conflicts []domain.PolicyConflict
	for i := 0; i < len(policies); i++ {
		for j := i + 1; j < len(policies); j++ {
			if c, ok := r.checkPair(policies[i], policies[j]); ok {
				r.recorder.RecordConflict(c.Type)
				conflicts = append(conflicts, c)
			}
		}
	}

	if len(conflicts) > 0 {
		r.logger.Debug("conflicts detected",
			"policies", len(policies),
			"conflicts", len(conflicts),
		)
	}
	return conflicts
}

func (r *Resolver) checkPair(a, b *domain.Policy) (domain.PolicyConflict, bool) {
	if !a.Target.Overlaps(b.Target) {
		return domain.PolicyConflict{}, false
	}

	for _, ra := range a.Rules {
		for _, rb := range b.Rules {
			conflictType, ok := RuleConflict(ra, rb)
			if !ok {
				continue
			}
			strategy := r.strategy
			description := fmt.Sprintf("Conflict between rule '%s' in policy '%s' and rule '%s' in policy '%s'",
				ra.Name, a.Name, rb.Name, b.Name)
			return domain.PolicyConflict{
				ID:          uuid.New(),
				PolicyIDs:   []uuid.UUID{a.ID, b.ID},
				RuleIDs:     []string{ra.ID, rb.ID},
				Type:        conflictType,
				Description: description,
				DetectedAt:  r.clock(),
				Resolution:  &strategy,
			}, true
		}
	}
	return domain.PolicyConflict{}, false
}

// RuleConflict classifies the conflict between two rules, if any. Rules
// that reference no common field never conflict.
func RuleConflict(a, b domain.Rule) (domain.ConflictType, bool) {
	if a.Expression == nil || b.Expression == nil {
		return "", false
	}
	if !ast.SharesField(a.Expression, b.Expression) {
		return "", false
	}

	switch {
	case contradictory(a.Expression, b.Expression) || contradictory(b.Expression, a.Expression):
		return domain.ConflictContradiction, true
	case overlapping(a.Expression, b.Expression):
		return domain.ConflictOverlap, true
	case impossible(a.Expression, b.Expression) || impossible(b.Expression, a.Expression):
		return domain.ConflictImpossible, true
	default:
		return "", false
	}
}

func contradictory(x, y ast.Expression) bool {
	switch a := x.(type) {
	case ast.Equal:
		switch b := y.(type) {
		case ast.Equal:
			return a.Field == b.Field && !ast.ValuesEqual(a.Value, b.Value)
		case ast.NotEqual:
			return a.Field == b.Field && ast.ValuesEqual(a.Value, b.Value)
		}
	case ast.GreaterThan:
		if b, ok := y.(ast.LessThanOrEqual); ok {
			return a.Field == b.Field && atLeast(a.Value, b.Value)
		}
	case ast.Exists:
		if b, ok := y.(ast.NotExists); ok {
			return a.Field == b.Field
		}
	}
	return false
}

func overlapping(x, y ast.Expression) bool {
	a, ok := x.(ast.In)
	if !ok {
		return false
	}
	b, ok := y.(ast.In)
	if !ok || a.Field != b.Field {
		return false
	}
	return !subset(a.Values, b.Values) && !subset(b.Values, a.Values)
}

func impossible(x, y ast.Expression) bool {
	a, ok := x.(ast.GreaterThan)
	if !ok {
		return false
	}
	b, ok := y.(ast.LessThan)
	return ok && a.Field == b.Field && atLeast(a.Value, b.Value)
}

// atLeast reports a >= b for ordered pairs. Unordered pairs never conflict.
func atLeast(a, b ast.Value) bool {
	order, ordered := ast.Compare(a, b)
	return ordered && order >= 0
}

func subset(small, large []ast.Value) bool {
	for _, v := range small {
		if !ast.ListContains(large, v) {
			return false
		}
	}
	return true
}
