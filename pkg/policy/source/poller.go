package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/tribune/pkg/policy/parser"
)

// ChangeFunc receives a bundle produced by a sync.
type ChangeFunc func(ctx context.Context, bundle *parser.Bundle) error

// Poller runs GitSource.Sync on a cron schedule and hands changed bundles
// to a ChangeFunc.
type Poller struct {
	source   *GitSource
	schedule string
	onChange ChangeFunc
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewPoller creates a poller. schedule accepts standard five-field cron
// expressions and descriptors such as "@every 30s".
func NewPoller(src *GitSource, schedule string, onChange ChangeFunc) *Poller {
	return &Poller{
		source:   src,
		schedule: schedule,
		onChange: onChange,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "policy.poller"),
	}
}

// Start schedules polling until ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if _, err := cron.ParseStandard(p.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", p.schedule, err)
	}
	if _, err := p.cron.AddFunc(p.schedule, func() {
		if err := p.Poll(ctx); err != nil {
			p.logger.Error("scheduled poll failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule polling: %w", err)
	}

	p.cron.Start()
	p.running = true
	p.logger.Info("git poller started", "schedule", p.schedule, "source", p.source.Describe())

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Poll runs one sync. A rejected commit is logged and not returned, since
// the checkout still holds the last good bundle.
func (p *Poller) Poll(ctx context.Context) error {
	result, err := p.source.Sync(ctx)
	var rejected *RejectedCommitError
	if errors.As(err, &rejected) {
		p.logger.Warn("keeping last good bundle", "rejected", short(rejected.SHA))
		return nil
	}
	if err != nil {
		return err
	}
	if result.Bundle == nil {
		return nil
	}
	return p.onChange(ctx, result.Bundle)
}

// Stop stops the schedule and waits for a running poll to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	<-p.cron.Stop().Done()
	p.running = false
	p.logger.Info("git poller stopped")
}

// IsRunning reports whether the schedule is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// NextRun returns the next scheduled poll, or nil when not running.
func (p *Poller) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.cron.Entries()
	if !p.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
