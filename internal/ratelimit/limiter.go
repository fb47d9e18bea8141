// Package ratelimit enforces a minimum interval between calls to one
// marketplace API. Each source gets its own Limiter; limiters share nothing.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter blocks callers until the next request slot for its source. It is
// built for one sequential caller but is safe for concurrent use.
type Limiter struct {
	name     string
	interval time.Duration
	lim      *rate.Limiter

	mu        sync.Mutex
	notBefore time.Time
	// last is the slot handed to the previous caller.
	last time.Time
}

// New returns a Limiter permitting one call per interval. A zero or
// negative interval disables the limit.
func New(name string, interval time.Duration) *Limiter {
	l := &Limiter{name: name, interval: interval}
	if interval > 0 {
		l.lim = rate.NewLimiter(rate.Every(interval), 1)
	} else {
		l.lim = rate.NewLimiter(rate.Inf, 1)
	}
	return l
}

// Name returns the source name the limiter was built for.
func (l *Limiter) Name() string { return l.name }

// Interval returns the configured minimum spacing between calls.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Acquire blocks until a call is permitted or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ratelimit: %s: %w", l.name, err)
	}
	if err := l.lim.Wait(ctx); err != nil {
		return fmt.Errorf("ratelimit: %s: %w", l.name, err)
	}

	// Space from the previous caller's slot, which may lie past a penalty
	// the token bucket knows nothing about.
	l.mu.Lock()
	now := time.Now()
	slot := now
	if l.notBefore.After(slot) {
		slot = l.notBefore
	}
	if l.interval > 0 && !l.last.IsZero() {
		if next := l.last.Add(l.interval); next.After(slot) {
			slot = next
		}
	}
	l.last = slot
	l.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("ratelimit: %s: %w", l.name, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Penalize pushes the next permitted call to at least now+d. It is called
// when the server reports throttling, so the next attempt honours the
// server's window rather than ours.
func (l *Limiter) Penalize(d time.Duration) {
	if d <= 0 {
		d = l.interval
	}
	until := time.Now().Add(d)

	l.mu.Lock()
	if until.After(l.notBefore) {
		l.notBefore = until
	}
	l.mu.Unlock()
}
