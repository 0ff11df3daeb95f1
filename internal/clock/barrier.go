package clock

import (
	"context"
	"sync"
)

// VersionBarrier is a monotonically-increasing integer watchpoint: it
// implements the "ordering barrier" primitive spec.md section 4.3 and
// section 5 require (latest_local_commit_batch_resolving,
// latest_local_commit_batch_logging). A later batch's WhenAtLeast call
// blocks until an earlier batch has advanced the barrier past it,
// enforcing strict local_batch_number ordering at each phase boundary.
//
// The teacher's coroutine runtime gets this for free from its
// single-threaded AsyncVar notification primitive; in Go the idiomatic
// equivalent is a mutex-guarded integer with per-waiter channels — no
// library in the retrieval pack offers a closer fit, so this is
// deliberately stdlib, not a third-party dependency.
type VersionBarrier struct {
	mu      sync.Mutex
	current int64
	waiters []barrierWaiter
}

type barrierWaiter struct {
	atLeast int64
	wake    chan struct{}
}

// NewVersionBarrier returns a barrier initialized to start (commonly 0).
func NewVersionBarrier(start int64) *VersionBarrier {
	return &VersionBarrier{current: start}
}

// Get returns the current barrier value.
func (b *VersionBarrier) Get() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Set advances the barrier to v and wakes any waiter whose threshold is
// now satisfied. Set must be called with strictly increasing v,
// matching the invariant that batches leave a phase in
// local_batch_number order.
func (b *VersionBarrier) Set(v int64) {
	b.mu.Lock()
	b.current = v
	remaining := b.waiters[:0]
	for _, w := range b.waiters {
		if w.atLeast <= v {
			close(w.wake)
		} else {
			remaining = append(remaining, w)
		}
	}
	b.waiters = remaining
	b.mu.Unlock()
}

// WhenAtLeast blocks until the barrier reaches at least v, or ctx is
// done. It is the suspension point enumerated in spec.md section 5 at
// the top of Phase 1 and Phase 3.
func (b *VersionBarrier) WhenAtLeast(ctx context.Context, v int64) error {
	b.mu.Lock()
	if b.current >= v {
		b.mu.Unlock()
		return nil
	}
	wake := make(chan struct{})
	b.waiters = append(b.waiters, barrierWaiter{atLeast: v, wake: wake})
	b.mu.Unlock()

	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		b.removeWaiter(wake)
		return ctx.Err()
	}
}

func (b *VersionBarrier) removeWaiter(wake chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range b.waiters {
		if w.wake == wake {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return
		}
	}
}
