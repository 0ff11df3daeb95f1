package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmootherResetSeedsEstimate(t *testing.T) {
	s := NewSmoother(1)
	s.Reset(42)
	assert.Equal(t, float64(42), s.SmoothTotal())
}

func TestSmootherZeroFoldingTracksExactly(t *testing.T) {
	s := NewSmoother(0)
	s.SetTotal(7)
	assert.Equal(t, float64(7), s.SmoothTotal())
	s.AddDelta(3)
	assert.Equal(t, float64(10), s.SmoothTotal())
}
