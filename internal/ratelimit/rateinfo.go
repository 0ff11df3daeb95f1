package ratelimit

import (
	"sync"
	"time"
)

// Tuning constants for the budget window. The distilled spec leaves the
// window length and empty-queue cap as proxy-internal constants (not
// wire-visible), so these are carried over from the original's observed
// defaults rather than re-derived.
const (
	// WindowSeconds is the interval over which limit-start deficits are
	// folded back into budget (spec.md section 4.4, "Budget update").
	WindowSeconds = 2.0
	// MaxEmptyQueueBudget caps the elastic budget a priority can bank
	// while its queue is drained, so a long idle stretch cannot let a
	// burst of later requests defeat the rate limit outright.
	MaxEmptyQueueBudget = 10.0
	// MaxTransactionsToStart bounds canStart regardless of how large
	// limit+budget has grown.
	MaxTransactionsToStart = 1000
)

// RateInfo is the per-priority admission gate spec.md section 4 names
// as component 2: a current rate, an elastic budget banked during idle
// ticks, and smoothed rate/released estimators for reporting back to
// the rate keeper. One instance exists per priority tier (normal,
// batch); normal admission additionally consults the batch tier's gate.
type RateInfo struct {
	mu sync.Mutex

	limit    float64
	budget   float64
	disabled bool

	smoothRate     *Smoother
	smoothReleased *Smoother
}

// NewRateInfo returns a disabled RateInfo (rate 0) with the given
// smoothing e-folding time, in seconds, applied to both estimators.
func NewRateInfo(eFoldingTime float64) *RateInfo {
	return &RateInfo{
		disabled:       true,
		smoothRate:     NewSmoother(eFoldingTime),
		smoothReleased: NewSmoother(eFoldingTime),
	}
}

// SetRate installs a new instantaneous rate limit from the rate keeper
// and re-enables the gate if it had been disabled.
func (r *RateInfo) SetRate(rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limit = rate
	r.disabled = false
	r.smoothRate.SetTotal(rate)
}

// Disable zeroes the rate, used when the rate keeper's lease expires
// without renewal (spec.md section 4.5).
func (r *RateInfo) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled = true
	r.limit = 0
	r.budget = 0
	r.smoothRate.SetTotal(0)
}

// Reset reinitializes the estimators at the start of a fresh batch
// interval, seeding them with the current limit.
func (r *RateInfo) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.smoothRate.Reset(r.limit)
	r.smoothReleased.Reset(0)
}

// CanStart reports whether tc additional transactions may be admitted
// given that numAlreadyStarted were already started this tick:
// n + tc <= min(limit + budget, MaxTransactionsToStart).
func (r *RateInfo) CanStart(numAlreadyStarted, tc int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disabled {
		return false
	}
	ceiling := r.limit + r.budget
	if ceiling > MaxTransactionsToStart {
		ceiling = MaxTransactionsToStart
	}
	return float64(numAlreadyStarted+tc) <= ceiling
}

// UpdateBudget folds the gap between the rate limit and the number
// actually started back into the elastic budget, and caps the budget
// when the priority's queue drained this tick (spec.md section 4.4).
func (r *RateInfo) UpdateBudget(numStarted int, queueEmpty bool, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.smoothReleased.AddDelta(float64(numStarted))

	deficit := r.limit - float64(numStarted)
	r.budget += elapsed.Seconds() * deficit / WindowSeconds
	if r.budget < 0 {
		r.budget = 0
	}
	if queueEmpty && r.budget > MaxEmptyQueueBudget {
		r.budget = MaxEmptyQueueBudget
	}
}

// Limit returns the current instantaneous rate.
func (r *RateInfo) Limit() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit
}

// Budget returns the current elastic budget.
func (r *RateInfo) Budget() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.budget
}

// Disabled reports whether the gate is currently refusing all admission.
func (r *RateInfo) Disabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled
}

// SmoothRate returns the smoothed instantaneous rate, for reporting to
// the rate keeper and the admin surface.
func (r *RateInfo) SmoothRate() float64 {
	return r.smoothRate.SmoothTotal()
}

// SmoothReleased returns the smoothed number of transactions started
// per second, for reporting to the rate keeper.
func (r *RateInfo) SmoothReleased() float64 {
	return r.smoothReleased.SmoothTotal()
}
