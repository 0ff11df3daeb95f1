package resolvers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyResolversCoversAllKeysWithResolverZero(t *testing.T) {
	kr := NewKeyResolvers()
	ids := kr.ResolversFor([]byte("anykey"), []byte("anykez"), 100)
	require.Len(t, ids, 1)
	assert.Equal(t, 0, ids[0])
}

func TestApplyRangeChangeAddsNewerAssignment(t *testing.T) {
	kr := NewKeyResolvers()
	kr.ApplyRangeChange([]byte("m"), []byte("z"), 50, 1)

	ids := kr.ResolversFor([]byte("n"), []byte("n\x00"), 10)
	assert.Contains(t, ids, 1)
	assert.Contains(t, ids, 0)

	latest, ok := kr.LatestResolverFor([]byte("n"), []byte("n\x00"))
	require.True(t, ok)
	assert.Contains(t, latest, 1)
}

func TestResolversForSpansReassignmentBoundary(t *testing.T) {
	kr := NewKeyResolvers()
	kr.ApplyRangeChange([]byte("m"), []byte("z"), 50, 1)

	// A conflict range straddling the m/z-vs-rest boundary must pick up
	// both the original resolver and the reassigned one.
	ids := kr.ResolversFor([]byte("a"), []byte("p"), 10)
	assert.Contains(t, ids, 0)
	assert.Contains(t, ids, 1)
}

func TestCoalesceDropsOldAssignments(t *testing.T) {
	kr := NewKeyResolvers()
	kr.ApplyRangeChange([]byte("m"), []byte("z"), 50, 1)
	kr.ApplyRangeChange([]byte("m"), []byte("z"), 100, 2)
	kr.Coalesce(75)

	latest, ok := kr.LatestResolverFor([]byte("n"), []byte("n\x00"))
	require.True(t, ok)
	assert.Contains(t, latest, 2)
}
