package keyinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignAndLookup(t *testing.T) {
	k := New()
	k.Assign([]byte("a"), []byte("m"), Entry{Tags: []string{"t1", "t1", ""}})

	e, ok := k.Lookup([]byte("c"))
	require.True(t, ok)
	assert.Equal(t, []string{"t1"}, e.Tags)
}

func TestTagsForIncludesCacheTag(t *testing.T) {
	k := New()
	k.Assign([]byte("a"), []byte("m"), Entry{Tags: []string{"t1"}, Cached: true})
	assert.ElementsMatch(t, []string{"t1", "cache"}, k.TagsFor([]byte("b")))
}

func TestTagsForUnknownKey(t *testing.T) {
	k := New()
	assert.Nil(t, k.TagsFor([]byte("z")))
}
