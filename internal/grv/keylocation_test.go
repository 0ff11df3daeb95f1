package grv

import (
	"testing"

	"github.com/pingcap-incubator/txnproxy/internal/keyinfo"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeyLocationServer(maxQueueSize int) *KeyLocationServer {
	ki := keyinfo.New()
	ki.Assign([]byte("a"), []byte("m"), keyinfo.Entry{Tags: []string{"ssd1"}})
	ki.Assign([]byte("m"), []byte("z"), keyinfo.Entry{Tags: []string{"ssd2"}})
	return NewKeyLocationServer(ki, maxQueueSize)
}

func TestGetKeyServerLocationsReturnsIntersectingShards(t *testing.T) {
	s := newTestKeyLocationServer(0)
	out, err := s.GetKeyServerLocations(&txnpb.GetKeyServerLocationsRequest{Begin: []byte("a"), End: []byte("z")})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"ssd1"}, out[0].Tags)
	assert.Equal(t, []string{"ssd2"}, out[1].Tags)
}

func TestGetKeyServerLocationsHonorsLimitAndReverse(t *testing.T) {
	s := newTestKeyLocationServer(0)
	out, err := s.GetKeyServerLocations(&txnpb.GetKeyServerLocationsRequest{
		Begin:   []byte("a"),
		End:     []byte("z"),
		Limit:   1,
		Reverse: true,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"ssd2"}, out[0].Tags)
}

func TestGetKeyServerLocationsRejectsOverMaxQueueSize(t *testing.T) {
	s := newTestKeyLocationServer(1)
	s.inFlight.Store(1)

	_, err := s.GetKeyServerLocations(&txnpb.GetKeyServerLocationsRequest{Begin: []byte("a"), End: []byte("z")})
	assert.ErrorIs(t, err, ErrKeyLocationQueueFull)
}
