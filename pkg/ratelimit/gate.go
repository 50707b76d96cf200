package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Gate paces callers to a fixed aggregate request rate. All workers syncing
// mailboxes share one Gate so the provider sees at most QPS requests per
// second regardless of mailbox-level parallelism.
//
// The gate keeps a single next-available-time cursor: each Acquire reserves
// the next slot and sleeps until it, so completions are spaced at least
// ceil(1000/qps) milliseconds apart in arrival order.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewGate creates a gate admitting at most qps acquisitions per second.
// qps values below 1 are treated as 1.
func NewGate(qps int) *Gate {
	if qps < 1 {
		qps = 1
	}
	intervalMs := (1000 + qps - 1) / qps
	return &Gate{
		interval: time.Duration(intervalMs) * time.Millisecond,
		next:     time.Now(),
	}
}

// Acquire blocks until the caller's reserved slot arrives or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	now := time.Now()
	wait := g.next.Sub(now)
	if g.next.Before(now) {
		g.next = now
	}
	g.next = g.next.Add(g.interval)
	g.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
