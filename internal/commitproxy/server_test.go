package commitproxy

import (
	"context"
	"testing"
	"time"

	"github.com/pingcap-incubator/txnproxy/internal/batcher"
	"github.com/pingcap-incubator/txnproxy/internal/clients"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatcherConfig() batcher.Config {
	return batcher.Config{
		MaxBatchInterval:            time.Millisecond,
		CommitBatchIntervalFromIdle: time.Millisecond,
		MinCommitBatchInterval:      time.Millisecond,
		MaxCommitBatchInterval:      10 * time.Millisecond,
		TransactionSizeLimit:        1 << 20,
		MaxBatchCount:               10,
		MemBytesLimit:               1 << 20,
		LargeTransactionThreshold:   1 << 20,
	}
}

func TestServerCommitRoundTrips(t *testing.T) {
	pipeline := New(testConfig(), &fakeMaster{}, []clients.ResolverClient{fakeResolver{}}, nil)
	server := NewServer(pipeline, testBatcherConfig(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan struct{})
	defer close(stop)
	go server.Run(ctx, stop)

	reply, err := server.Commit(ctx, &commitWireRequest{
		Transaction: txnpb.CommitTransaction{
			Mutations: []txnpb.Mutation{{Kind: txnpb.MutationSet, Param1: []byte("k"), Param2: []byte("v")}},
		},
	})
	require.NoError(t, err)
	assert.True(t, reply.Committed)
}

func TestServerCommitRejectsWhenStreamFull(t *testing.T) {
	pipeline := New(testConfig(), &fakeMaster{}, []clients.ResolverClient{fakeResolver{}}, nil)
	server := NewServer(pipeline, testBatcherConfig(), 0)

	reply, err := server.Commit(context.Background(), &commitWireRequest{})
	require.NoError(t, err)
	assert.False(t, reply.Committed)
	assert.EqualValues(t, 1040, reply.ErrorCode)
}
