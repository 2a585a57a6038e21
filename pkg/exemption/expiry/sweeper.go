package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tribune/pkg/eventstore"
	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/event"
	"mercator-hq/tribune/pkg/repository"
)

// Actor is recorded on the events the sweeper appends.
const Actor = "system:expiry"

// Recorder receives sweep outcomes. The metrics collector implements it.
type Recorder interface {
	RecordSweep(result *Result, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordSweep(*Result, error) {}

// Result summarizes one sweep.
type Result struct {
	StartedAt time.Time
	Duration  time.Duration
	Scanned   int
	Expired   []uuid.UUID
	Conflicts int
	Failed    int
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock sets the clock that decides which exemptions have expired.
func WithClock(clock func() time.Time) Option {
	return func(s *Sweeper) { s.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithRecorder sets the sweep recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Sweeper) { s.recorder = r }
}

// Sweeper appends expiry events for exemptions past their window.
type Sweeper struct {
	repo     *repository.Repository[domain.Exemption]
	clock    func() time.Time
	logger   *slog.Logger
	recorder Recorder
}

// NewSweeper creates a sweeper over the exemption repository.
func NewSweeper(repo *repository.Repository[domain.Exemption], opts ...Option) *Sweeper {
	s := &Sweeper{
		repo:     repo,
		clock:    time.Now,
		logger:   slog.Default().With("component", "exemption.expiry"),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep expires every Active exemption whose valid_until is before now.
// Failures on single exemptions do not stop the sweep; they are joined into
// the returned error. Sequence conflicts are counted and not reported as
// errors.
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	now := s.clock()
	result := &Result{StartedAt: now}

	ids, err := s.repo.IDs(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list exemptions: %w", err)
		s.recorder.RecordSweep(result, err)
		return result, err
	}

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result.Scanned++

		expired, err := s.expire(ctx, id, now)
		switch {
		case errors.Is(err, eventstore.ErrSequenceConflict):
			result.Conflicts++
			s.logger.Warn("exemption changed during sweep", "exemption_id", id)
		case err != nil:
			result.Failed++
			errs = append(errs, err)
		case expired:
			result.Expired = append(result.Expired, id)
		}
	}
	result.Duration = s.clock().Sub(now)

	err = errors.Join(errs...)
	s.recorder.RecordSweep(result, err)

	if err != nil {
		s.logger.Error("expiry sweep finished with errors",
			"scanned", result.Scanned,
			"expired", len(result.Expired),
			"failed", result.Failed,
			"error", err,
		)
	} else if len(result.Expired) > 0 {
		s.logger.Info("exemptions expired",
			"scanned", result.Scanned,
			"expired", len(result.Expired),
			"conflicts", result.Conflicts,
		)
	} else {
		s.logger.Debug("no exemptions expired", "scanned", result.Scanned)
	}
	return result, err
}

func (s *Sweeper) expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	x, err := s.repo.Load(ctx, id)
	if err != nil {
		return false, err
	}
	if x.Status.State != domain.ExemptionActive || !now.After(x.ValidUntil) {
		return false, nil
	}

	e := event.New(id, event.ExemptionExpired{
		ExemptionID: id,
		PolicyID:    x.PolicyID,
		ExpiredAt:   x.ValidUntil,
	}, Actor, now)
	e.Seq = x.Revision + 1

	if err := s.repo.Save(ctx, []event.Event{e}); err != nil {
		return false, err
	}
	s.logger.Debug("exemption expired",
		"exemption_id", id,
		"policy_id", x.PolicyID,
		"valid_until", x.ValidUntil,
	)
	return true, nil
}
