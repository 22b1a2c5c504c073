// Package barrier provides the completion barrier the harness waits on.
package barrier

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrOvercommitted is returned when more completions are reported than expected.
var ErrOvercommitted = errors.New("barrier: more completions than expected")

// Barrier is satisfied exactly once, when the number of completed units
// equals the expected count. The completed count never decreases.
type Barrier struct {
	expected  int64
	completed atomic.Int64
	done      chan struct{}
	once      sync.Once
}

// New creates a barrier expecting n completions. A barrier with n <= 0 is
// satisfied immediately.
func New(n int) *Barrier {
	if n < 0 {
		n = 0
	}
	b := &Barrier{
		expected: int64(n),
		done:     make(chan struct{}),
	}
	if n == 0 {
		b.release()
	}
	return b
}

// Done marks one unit complete. It is safe for concurrent use.
func (b *Barrier) Done() error {
	for {
		cur := b.completed.Load()
		if cur >= b.expected {
			return ErrOvercommitted
		}
		if b.completed.CompareAndSwap(cur, cur+1) {
			if cur+1 == b.expected {
				b.release()
			}
			return nil
		}
	}
}

func (b *Barrier) release() {
	b.once.Do(func() { close(b.done) })
}

// Wait returns a channel closed once every expected unit has completed.
func (b *Barrier) Wait() <-chan struct{} {
	return b.done
}

// Completed reports how many units have finished.
func (b *Barrier) Completed() int {
	return int(b.completed.Load())
}

// Expected reports the total number of units the barrier waits for.
func (b *Barrier) Expected() int {
	return int(b.expected)
}
