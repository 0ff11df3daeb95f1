package ratelimit

import (
	"sync"
	"time"
)

// Lease tracks the rate keeper's renewal deadline (spec.md section 4.5:
// "Two RateInfo objects receive (rate, batchRate) ... at
// leaseDuration/2 cadence. If the lease expires without renewal, both
// are disable()d."). The grv dispatcher polls Expired and disables its
// RateInfo pair when true.
type Lease struct {
	mu       sync.Mutex
	deadline time.Time
}

// NewLease returns a Lease that is already expired, so a proxy that
// never hears from the rate keeper starts out disabled rather than
// unbounded.
func NewLease() *Lease {
	return &Lease{}
}

// Renew extends the deadline to now + duration.
func (l *Lease) Renew(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deadline = time.Now().Add(duration)
}

// Expired reports whether the lease has lapsed.
func (l *Lease) Expired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deadline.IsZero() || time.Now().After(l.deadline)
}
