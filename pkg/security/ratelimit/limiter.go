package ratelimit

import (
	"time"

	"mercator-hq/tribune/pkg/config"
)

// Reasons reported when a request is rejected. They double as metric label
// values.
const (
	ReasonPerSecond  = "requests_per_second"
	ReasonPerMinute  = "requests_per_minute"
	ReasonConcurrent = "concurrent"
)

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	// Allowed indicates if the request is permitted.
	Allowed bool

	// Reason names the exhausted limit when Allowed is false.
	Reason string

	// Limit is the capacity of the limit that was checked last.
	Limit int64

	// Remaining is what is left of that limit.
	Remaining int64

	// RetryAfter suggests how long to wait before retrying.
	RetryAfter time.Duration
}

// Limiter combines the limits of one caller. Zero limits in the rule are
// not enforced.
type Limiter struct {
	perSecond  *TokenBucket
	perMinute  *TokenBucket
	concurrent *ConcurrentLimiter
}

// NewLimiter creates a limiter for rule.
func NewLimiter(rule config.RateLimitRule, now func() time.Time) *Limiter {
	l := &Limiter{}
	if rule.RequestsPerSecond > 0 {
		// Allow bursts of twice the per-second rate.
		l.perSecond = NewTokenBucket(int64(rule.RequestsPerSecond*2), float64(rule.RequestsPerSecond), now)
	}
	if rule.RequestsPerMinute > 0 {
		l.perMinute = NewTokenBucket(int64(rule.RequestsPerMinute), float64(rule.RequestsPerMinute)/60.0, now)
	}
	if rule.MaxConcurrent > 0 {
		l.concurrent = NewConcurrentLimiter(rule.MaxConcurrent)
	}
	return l
}

// CheckRequest consumes one request from the rate limits. A token taken
// from the per-second bucket is not returned when the per-minute bucket
// rejects the request.
func (l *Limiter) CheckRequest() *CheckResult {
	result := &CheckResult{Allowed: true}
	for _, b := range []struct {
		bucket *TokenBucket
		reason string
	}{
		{l.perSecond, ReasonPerSecond},
		{l.perMinute, ReasonPerMinute},
	} {
		if b.bucket == nil {
			continue
		}
		if !b.bucket.Take(1) {
			return &CheckResult{
				Reason:     b.reason,
				Limit:      b.bucket.Capacity(),
				RetryAfter: b.bucket.TimeUntilAvailable(1),
			}
		}
		result.Limit = b.bucket.Capacity()
		result.Remaining = b.bucket.Remaining()
	}
	return result
}

// Acquire takes a concurrency slot. Without a concurrency limit it always
// succeeds. A successful Acquire must be paired with Release.
func (l *Limiter) Acquire() bool {
	if l.concurrent == nil {
		return true
	}
	return l.concurrent.Acquire()
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	if l.concurrent != nil {
		l.concurrent.Release()
	}
}

// InFlight returns the number of requests holding a concurrency slot.
func (l *Limiter) InFlight() int64 {
	if l.concurrent == nil {
		return 0
	}
	return l.concurrent.Current()
}

// ConcurrentLimit returns the concurrency limit, or 0 when none is set.
func (l *Limiter) ConcurrentLimit() int64 {
	if l.concurrent == nil {
		return 0
	}
	return l.concurrent.Limit()
}
