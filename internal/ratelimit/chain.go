package ratelimit

import (
	"context"
	"time"
)

// Gate is anything that can hold a caller until its next request slot.
type Gate interface {
	Acquire(ctx context.Context) error
	Penalize(d time.Duration)
}

// Chain acquires every gate in order. It combines the in-process Limiter
// with a shared gate so separate processes importing the same source stay
// within one budget.
type Chain []Gate

// Acquire waits on each gate in turn.
func (c Chain) Acquire(ctx context.Context) error {
	for _, g := range c {
		if err := g.Acquire(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Penalize forwards the penalty to every gate.
func (c Chain) Penalize(d time.Duration) {
	for _, g := range c {
		g.Penalize(d)
	}
}

var (
	_ Gate = (*Limiter)(nil)
	_ Gate = Chain(nil)
)
