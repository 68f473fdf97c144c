// Package retrylimit paces calls against rate limited APIs and retries the
// ones that fail. The limiter speeds up while calls succeed and backs off
// multiplicatively once the remote side pushes back.
package retrylimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// recoveryWindow is how long after a rate limit successes stop raising the rate.
const recoveryWindow = 10 * time.Second

// AdaptiveLimiter is a token bucket whose rate moves between min and max.
type AdaptiveLimiter struct {
	bucket *rate.Limiter

	mu       sync.Mutex
	min, max rate.Limit
	step     rate.Limit
	factor   float64
	limited  time.Time
	now      func() time.Time
}

// NewAdaptiveLimiter starts at initial calls per second. Every success adds
// step, every rate limit multiplies by factor, and the result is clamped to
// [min, max]. Rates below one per second are raised to one.
func NewAdaptiveLimiter(initial, min, max, step rate.Limit, factor float64) *AdaptiveLimiter {
	min = max1(min)
	initial = max1(initial)
	if max < min {
		max = min
	}
	return &AdaptiveLimiter{
		bucket: rate.NewLimiter(initial, burstFor(initial)),
		min:    min,
		max:    max,
		step:   step,
		factor: factor,
		now:    time.Now,
	}
}

// Wait blocks until the next call may go out.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.bucket.Wait(ctx)
}

// Success records a call that went through.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.now().Sub(a.limited) < recoveryWindow {
		return
	}
	a.set(a.bucket.Limit() + a.step)
}

// RateLimited records a call the remote side refused for load reasons.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limited = a.now()
	a.set(rate.Limit(float64(a.bucket.Limit()) * a.factor))
}

// CurrentLimit is the rate in calls per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	return float64(a.bucket.Limit())
}

func (a *AdaptiveLimiter) MinLimit() rate.Limit { return a.min }

// set must be called with mu held.
func (a *AdaptiveLimiter) set(l rate.Limit) {
	l = min(max(l, a.min), a.max)
	if l == a.bucket.Limit() {
		return
	}
	a.bucket.SetLimit(l)
	a.bucket.SetBurst(burstFor(l))
}

func burstFor(l rate.Limit) int {
	return max(1, int(l))
}

func max1(l rate.Limit) rate.Limit {
	if l < 1 {
		return 1
	}
	return l
}
