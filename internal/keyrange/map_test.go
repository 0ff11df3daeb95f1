package keyrange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapLookupUnassignedKey(t *testing.T) {
	m := New()
	_, ok := m.Lookup([]byte("a"))
	assert.False(t, ok)
}

func TestMapInsertAndLookup(t *testing.T) {
	m := New()
	m.Insert([]byte("a"), []byte("m"), "shard1")
	m.Insert([]byte("m"), nil, "shard2")

	v, ok := m.Lookup([]byte("b"))
	require.True(t, ok)
	assert.Equal(t, "shard1", v)

	v, ok = m.Lookup([]byte("z"))
	require.True(t, ok)
	assert.Equal(t, "shard2", v)
}

func TestMapInsertSplitsOverlappingRange(t *testing.T) {
	m := New()
	m.Insert([]byte("a"), []byte("z"), "old")
	m.Insert([]byte("f"), []byte("g"), "new")

	v, _ := m.Lookup([]byte("b"))
	assert.Equal(t, "old", v)
	v, _ = m.Lookup([]byte("f"))
	assert.Equal(t, "new", v)
	v, _ = m.Lookup([]byte("h"))
	assert.Equal(t, "old", v)
}

func TestMapIntersecting(t *testing.T) {
	m := New()
	m.Insert([]byte("a"), []byte("f"), "s1")
	m.Insert([]byte("f"), []byte("z"), "s2")

	entries := m.Intersecting([]byte("c"), []byte("x"))
	require.Len(t, entries, 2)
	assert.Equal(t, "s1", entries[0].Value)
	assert.Equal(t, "s2", entries[1].Value)
}
