package tagsampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldSampleAlwaysTrueWhenProbabilityExceedsOne(t *testing.T) {
	s := New(10)
	assert.True(t, s.ShouldSample(1000, 1000))
}

func TestShouldSampleFalseForZeroTotal(t *testing.T) {
	s := New(10)
	assert.False(t, s.ShouldSample(5, 0))
}

func TestAttributeCostAccumulatesAcrossServersAndTags(t *testing.T) {
	s := New(10)
	s.AttributeCost([]string{"ssd1", "ssd2"}, []string{"tagA"}, 5)
	s.AttributeCost([]string{"ssd1"}, []string{"tagA", "tagB"}, 3)

	costs := s.DrainCosts()
	assert.Equal(t, int64(8), costs["ssd1"]["tagA"])
	assert.Equal(t, int64(3), costs["ssd1"]["tagB"])
	assert.Equal(t, int64(5), costs["ssd2"]["tagA"])
}

func TestDrainCostsClearsAccumulator(t *testing.T) {
	s := New(10)
	s.AttributeCost([]string{"ssd1"}, []string{"tagA"}, 5)

	first := s.DrainCosts()
	assert.NotEmpty(t, first)

	second := s.DrainCosts()
	assert.Empty(t, second)
}

func TestPartKeyIsDeterministic(t *testing.T) {
	k1 := PartKey([]byte("dest"), 1, 100, 0)
	k2 := PartKey([]byte("dest"), 1, 100, 0)
	assert.Equal(t, k1, k2)

	k3 := PartKey([]byte("dest"), 1, 100, 1)
	assert.NotEqual(t, k1, k3)
}
