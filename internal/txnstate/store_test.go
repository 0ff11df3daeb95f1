package txnstate

import (
	"testing"

	"github.com/pingcap-incubator/txnproxy/internal/keyinfo"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySetAndGet(t *testing.T) {
	s := New(keyinfo.New())
	_, err := s.Apply(txnpb.Mutation{Kind: txnpb.MutationSet, Param1: DatabaseLockedKey, Param2: []byte("1")})
	require.NoError(t, err)
	assert.True(t, s.Locked())
}

func TestApplyCoordinatorsChangeDetected(t *testing.T) {
	s := New(keyinfo.New())
	change, err := s.Apply(txnpb.Mutation{Kind: txnpb.MutationSet, Param1: CoordinatorsKey, Param2: []byte("a,b")})
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, []string{"a", "b"}, change.New)

	change, err = s.Apply(txnpb.Mutation{Kind: txnpb.MutationSet, Param1: CoordinatorsKey, Param2: []byte("a,b")})
	require.NoError(t, err)
	assert.Nil(t, change, "unchanged coordinator list should not report a change")
}

func TestApplyKeyServersUpdatesKeyInfo(t *testing.T) {
	ki := keyinfo.New()
	s := New(ki)
	key := append(append([]byte{}, keyServersPrefix...), []byte("shard1")...)
	_, err := s.Apply(txnpb.Mutation{Kind: txnpb.MutationSet, Param1: key, Param2: []byte("t1,t2\x00t3")})
	require.NoError(t, err)

	tags := ki.TagsFor([]byte("shard1"))
	assert.ElementsMatch(t, []string{"t1", "t2"}, tags)
}

func TestApplyClearRangeRemovesKeys(t *testing.T) {
	s := New(keyinfo.New())
	_, _ = s.Apply(txnpb.Mutation{Kind: txnpb.MutationSet, Param1: []byte("a"), Param2: []byte("1")})
	s.applyClearRange([]byte("a"), []byte("b"))
	_, ok := s.Get([]byte("a"))
	assert.False(t, ok)
}
