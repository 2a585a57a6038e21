package ratelimit

import (
	"sync"
	"time"

	"mercator-hq/tribune/pkg/config"
)

// DefaultIdleTimeout is how long an unused limiter is kept.
const DefaultIdleTimeout = 10 * time.Minute

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock sets the clock used by the token buckets and idle eviction.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIdleTimeout sets how long an unused limiter is kept.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

type entry struct {
	limiter  *Limiter
	lastSeen time.Time
}

// Registry hands out one Limiter per caller key.
type Registry struct {
	defaults    config.RateLimitRule
	actors      map[string]config.RateLimitRule
	idleTimeout time.Duration
	now         func() time.Time

	mu        sync.Mutex
	limiters  map[string]*entry
	lastSweep time.Time
}

// NewRegistry creates a registry from the server rate limit configuration.
func NewRegistry(cfg config.RateLimitConfig, opts ...RegistryOption) *Registry {
	r := &Registry{
		defaults:    cfg.Default,
		actors:      cfg.Actors,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		limiters:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lastSweep = r.now()
	return r
}

// Limiter returns the limiter of key, creating it on first use. actor
// selects the per-actor rule and may be empty.
func (r *Registry) Limiter(key, actor string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= r.idleTimeout {
		r.sweepLocked(now)
	}

	e, ok := r.limiters[key]
	if !ok {
		rule, found := r.actors[actor]
		if !found {
			rule = r.defaults
		}
		e = &entry{limiter: NewLimiter(rule, r.now)}
		r.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Len returns the number of live limiters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// sweepLocked drops limiters that are idle and hold no concurrency slot.
// Caller must hold lock.
func (r *Registry) sweepLocked(now time.Time) {
	for key, e := range r.limiters {
		if now.Sub(e.lastSeen) >= r.idleTimeout && e.limiter.InFlight() == 0 {
			delete(r.limiters, key)
		}
	}
	r.lastSweep = now
}
