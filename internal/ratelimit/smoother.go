// Package ratelimit implements the proxy's admission-control primitives
// (spec.md section 4.5, component 2): an exponentially-smoothed rate
// estimator and the per-priority RateInfo token-bucket gate, modeled on
// GrvTransactionRateInfo in the original source this spec was distilled
// from. golang.org/x/time/rate covers generic token-bucket limiting
// elsewhere in this module (the grv dispatcher's outbound pacing); the
// admission check here needs the specific canStart/updateBudget shape
// spec.md section 4.4 names, which no off-the-shelf limiter exposes, so
// it is hand-rolled in the teacher's style.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Smoother is an exponential moving average with a fixed e-folding time,
// matching spec.md section 9's required operation set: SetTotal,
// SmoothTotal, AddDelta, Reset.
type Smoother struct {
	mu sync.Mutex

	eFoldingTime float64
	lastUpdate   time.Time
	total        float64
	estimate     float64
}

// NewSmoother returns a Smoother with the given e-folding time, in
// seconds. A zero or negative eFoldingTime disables smoothing: the
// estimate tracks total exactly.
func NewSmoother(eFoldingTime float64) *Smoother {
	return &Smoother{eFoldingTime: eFoldingTime, lastUpdate: time.Now()}
}

func (s *Smoother) advance() {
	now := time.Now()
	elapsed := now.Sub(s.lastUpdate).Seconds()
	s.lastUpdate = now
	if elapsed <= 0 {
		return
	}
	if s.eFoldingTime <= 0 {
		s.estimate = s.total
		return
	}
	decay := math.Exp(-elapsed / s.eFoldingTime)
	s.estimate = s.estimate*decay + s.total*(1-decay)
}

// SetTotal replaces the raw (unsmoothed) input value.
func (s *Smoother) SetTotal(total float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.total = total
}

// AddDelta adjusts the raw input value by delta.
func (s *Smoother) AddDelta(delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.total += delta
}

// SmoothTotal returns the current smoothed estimate.
func (s *Smoother) SmoothTotal() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return s.estimate
}

// Reset discards history and seeds both the raw value and the estimate
// with rate.
func (s *Smoother) Reset(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdate = time.Now()
	s.total = rate
	s.estimate = rate
}
