// Package auth serializes authentication attempts behind a single gate and
// validates access tokens inside the guarded critical section.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Typed rejections surfaced by the gate.
var (
	ErrQueueFull    = errors.New("auth queue full")
	ErrAuthTimeout  = errors.New("auth queue wait timed out")
	ErrQueueCleared = errors.New("auth queue cleared")
)

// Gate defaults. Authentication rates are expected to be low; the gate is a
// deliberate process-wide bottleneck.
const (
	DefaultCooldown   = 2000 * time.Millisecond
	DefaultStaleAfter = 10000 * time.Millisecond
	DefaultQueueSize  = 5
)

type waiter struct {
	ch         chan error
	enqueuedAt time.Time
}

// Gate is a mutual-exclusion gate with a bounded FIFO wait queue and a
// cooldown between authentication starts. Construct one per process and
// pass it explicitly; there is no package-level instance.
type Gate struct {
	mu            sync.Mutex
	locked        bool
	queue         []*waiter
	lastAuthStart time.Time

	cooldown   time.Duration
	staleAfter time.Duration
	maxQueue   int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// GateOptions overrides the gate limits; zero values take the defaults.
type GateOptions struct {
	Cooldown   time.Duration
	StaleAfter time.Duration
	QueueSize  int
	Now        func() time.Time
}

func NewGate(opts GateOptions) *Gate {
	g := &Gate{
		cooldown:   opts.Cooldown,
		staleAfter: opts.StaleAfter,
		maxQueue:   opts.QueueSize,
		now:        opts.Now,
		sleep:      sleepWithContext,
	}
	if g.cooldown <= 0 {
		g.cooldown = DefaultCooldown
	}
	if g.staleAfter <= 0 {
		g.staleAfter = DefaultStaleAfter
	}
	if g.maxQueue <= 0 {
		g.maxQueue = DefaultQueueSize
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire grants the gate immediately when unheld, otherwise joins the FIFO
// queue. Fails fast with ErrQueueFull when the queue is at capacity; the
// bound is a backpressure valve, not a timeout.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.locked {
		g.locked = true
		g.mu.Unlock()
		return nil
	}
	if len(g.queue) >= g.maxQueue {
		g.mu.Unlock()
		return ErrQueueFull
	}
	w := &waiter{ch: make(chan error, 1), enqueuedAt: g.now()}
	g.queue = append(g.queue, w)
	g.mu.Unlock()

	select {
	case err := <-w.ch:
		return err
	case <-ctx.Done():
		g.mu.Lock()
		for i, q := range g.queue {
			if q == w {
				g.queue = append(g.queue[:i], g.queue[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// Already dequeued: if ownership was granted, hand it back.
		if err := <-w.ch; err == nil {
			g.Release()
		}
		return ctx.Err()
	}
}

// Release hands the gate to the oldest queued waiter. Waiters gone stale by
// dequeue time are rejected with ErrAuthTimeout and skipped; staleness is
// only checked when a waiter is reached, never proactively.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for len(g.queue) > 0 {
		w := g.queue[0]
		g.queue = g.queue[1:]
		if g.now().Sub(w.enqueuedAt) > g.staleAfter {
			w.ch <- ErrAuthTimeout
			continue
		}
		// Ownership transfers; the gate stays locked.
		w.ch <- nil
		return
	}
	g.locked = false
}

// ExecuteAuth runs fn under the gate, first waiting out whatever remains of
// the cooldown measured from the previous authentication start. The gate is
// released on every exit path regardless of fn's outcome.
func (g *Gate) ExecuteAuth(ctx context.Context, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()

	g.mu.Lock()
	var wait time.Duration
	if !g.lastAuthStart.IsZero() {
		wait = g.cooldown - g.now().Sub(g.lastAuthStart)
	}
	g.mu.Unlock()

	if wait > 0 {
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.lastAuthStart = g.now()
	g.mu.Unlock()

	return fn()
}

// ClearQueue rejects every waiter and unlocks unconditionally. Emergency
// recovery only, never the normal path.
func (g *Gate) ClearQueue() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, w := range g.queue {
		w.ch <- ErrQueueCleared
	}
	g.queue = nil
	g.locked = false
}

// Reset clears the queue and additionally zeroes the cooldown clock.
func (g *Gate) Reset() {
	g.mu.Lock()
	for _, w := range g.queue {
		w.ch <- ErrQueueCleared
	}
	g.queue = nil
	g.locked = false
	g.lastAuthStart = time.Time{}
	g.mu.Unlock()
}

// QueueLen reports the number of queued waiters.
func (g *Gate) QueueLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}
