package batcher

import (
	"testing"
	"time"

	"github.com/pingcap-incubator/txnproxy/internal/queue"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		MaxBatchInterval:            5 * time.Millisecond,
		CommitBatchIntervalFromIdle: time.Millisecond,
		MinCommitBatchInterval:      time.Millisecond,
		MaxCommitBatchInterval:      50 * time.Millisecond,
		TransactionSizeLimit:        1024,
		MaxBatchCount:               4,
		MemBytesLimit:               1 << 20,
		LargeTransactionThreshold:   1 << 16,
	}
}

func TestBatcherDispatchesOnMaxBatchCount(t *testing.T) {
	cfg := testConfig()
	stream := queue.NewCommitStream(8)
	mem := NewMemoryCounter(cfg.MemBytesLimit)
	b := New(cfg, stream, mem)

	for i := 0; i < cfg.MaxBatchCount; i++ {
		stream.Send(&txnpb.CommitTransactionRequest{ReplyCh: make(chan txnpb.CommitReply, 1)})
	}

	batch, ok := b.Next(nil)
	require.True(t, ok)
	assert.Len(t, batch.Requests, cfg.MaxBatchCount)
}

func TestBatcherDispatchesOnFirstInBatchFlag(t *testing.T) {
	cfg := testConfig()
	stream := queue.NewCommitStream(8)
	mem := NewMemoryCounter(cfg.MemBytesLimit)
	b := New(cfg, stream, mem)

	stream.Send(&txnpb.CommitTransactionRequest{
		Transaction: txnpb.CommitTransaction{Flags: txnpb.FlagFirstInBatch},
		ReplyCh:     make(chan txnpb.CommitReply, 1),
	})

	batch, ok := b.Next(nil)
	require.True(t, ok)
	assert.Len(t, batch.Requests, 1)
}

func TestMemoryCounterRejectsOverLimit(t *testing.T) {
	mem := NewMemoryCounter(10)
	assert.True(t, mem.TryAcquire(6))
	assert.False(t, mem.TryAcquire(6))
	mem.Release(6)
	assert.True(t, mem.TryAcquire(6))
}

func TestObserveLatencyClampsInterval(t *testing.T) {
	cfg := testConfig()
	stream := queue.NewCommitStream(1)
	mem := NewMemoryCounter(cfg.MemBytesLimit)
	b := New(cfg, stream, mem)

	b.ObserveLatency(10 * time.Second)
	assert.LessOrEqual(t, b.interval, cfg.MaxCommitBatchInterval)
}
