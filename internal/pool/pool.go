// Package pool runs functions on goroutines with an optional cap on how many
// run at the same time.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Go after Wait has been called.
var ErrClosed = errors.New("pool: group closed")

// Group runs submitted functions concurrently. A limit of zero means every
// submitted function gets its own goroutine immediately.
type Group struct {
	slots  chan struct{}
	wg     sync.WaitGroup
	active atomic.Int64
	peak   atomic.Int64
	closed atomic.Bool
}

// New creates a Group that runs at most limit functions at once.
func New(limit int) *Group {
	g := &Group{}
	if limit > 0 {
		g.slots = make(chan struct{}, limit)
	}
	return g
}

// Limit reports the concurrency cap, or zero when unbounded.
func (g *Group) Limit() int {
	return cap(g.slots)
}

// Go starts fn on a new goroutine, blocking while the group is at its limit.
// It returns ctx.Err() if ctx ends while waiting for a free slot; fn is not run then.
// A panic in fn is recovered and passed to onPanic when set.
func (g *Group) Go(ctx context.Context, fn func(), onPanic func(error)) error {
	if g.closed.Load() {
		return ErrClosed
	}
	if g.slots != nil {
		select {
		case g.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g.wg.Add(1)
	g.track(1)
	go func() {
		defer func() {
			if r := recover(); r != nil && onPanic != nil {
				onPanic(fmt.Errorf("pool: recovered panic: %v", r))
			}
			g.track(-1)
			if g.slots != nil {
				<-g.slots
			}
			g.wg.Done()
		}()
		fn()
	}()
	return nil
}

func (g *Group) track(delta int64) {
	cur := g.active.Add(delta)
	for {
		peak := g.peak.Load()
		if cur <= peak || g.peak.CompareAndSwap(peak, cur) {
			return
		}
	}
}

// Wait closes the group to new work and blocks until every started function returns.
func (g *Group) Wait() {
	g.closed.Store(true)
	g.wg.Wait()
}

// Active reports how many functions are currently running.
func (g *Group) Active() int {
	return int(g.active.Load())
}

// Peak reports the highest number of functions that ran at once.
func (g *Group) Peak() int {
	return int(g.peak.Load())
}
