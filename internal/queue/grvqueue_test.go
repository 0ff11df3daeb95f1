package queue

import (
	"testing"

	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/stretchr/testify/assert"
)

func TestGRVQueueDrainsHighestPriorityFirst(t *testing.T) {
	q := NewGRVQueue()
	q.Push(&txnpb.GetReadVersionRequest{Priority: txnpb.PriorityBatch})
	q.Push(&txnpb.GetReadVersionRequest{Priority: txnpb.PriorityImmediate})
	q.Push(&txnpb.GetReadVersionRequest{Priority: txnpb.PriorityDefault})

	assert.Equal(t, txnpb.PriorityImmediate, q.PopHighest().Priority)
	assert.Equal(t, txnpb.PriorityDefault, q.PopHighest().Priority)
	assert.Equal(t, txnpb.PriorityBatch, q.PopHighest().Priority)
	assert.Nil(t, q.PopHighest())
}

func TestGRVQueueTagCountsDrainOnRead(t *testing.T) {
	q := NewGRVQueue()
	q.Push(&txnpb.GetReadVersionRequest{Tags: []string{"a", "a", "b"}})
	counts := q.TagCounts()
	assert.Equal(t, 2, counts["a"])
	assert.Equal(t, 1, counts["b"])
	assert.Empty(t, q.TagCounts())
}

func TestGRVQueueEmptyBatch(t *testing.T) {
	q := NewGRVQueue()
	assert.True(t, q.EmptyBatch())
	q.Push(&txnpb.GetReadVersionRequest{Priority: txnpb.PriorityBatch})
	assert.False(t, q.EmptyBatch())
}
