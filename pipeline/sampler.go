package pipeline

import (
	"context"
	"sync/atomic"
	"time"
)

// Sampler calls Tick at a fixed rate until its context is cancelled.
type Sampler struct {
	Interval time.Duration
	Tick     func(ctx context.Context)
}

// Run blocks until ctx is done. The first tick fires one interval after start.
func (s Sampler) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Guard allows at most one outstanding call. A tick that finds the guard held
// is dropped, not queued.
type Guard struct {
	busy    atomic.Bool
	dropped atomic.Int64
}

// TryAcquire takes the guard, or counts a drop and returns false.
func (g *Guard) TryAcquire() bool {
	if g.busy.CompareAndSwap(false, true) {
		return true
	}
	g.dropped.Add(1)
	return false
}

// Release frees the guard.
func (g *Guard) Release() {
	g.busy.Store(false)
}

// Busy reports whether a call is outstanding.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}

// Dropped returns how many acquisitions failed.
func (g *Guard) Dropped() int64 {
	return g.dropped.Load()
}
