package grv

import (
	"context"
	"testing"
	"time"

	"github.com/pingcap-incubator/txnproxy/internal/clock"
	"github.com/pingcap-incubator/txnproxy/internal/queue"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerGetReadVersionRoundTrips(t *testing.T) {
	cfg := Config{GRVBatchTime: time.Millisecond, GRVProxyCount: 1, MaxRequestsToStart: 100}
	proxy := New(cfg, queue.NewGRVQueue(), clock.NewEpochState(), nil)
	proxy.normalRate.SetRate(1000)
	proxy.batchRate.SetRate(1000)
	proxy.lease.Renew(time.Hour)
	proxy.epoch.SetCommittedVersion(7)

	server := NewServer(proxy)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan struct{})
	defer close(stop)
	go server.Run(ctx, stop)

	reply, err := server.GetReadVersion(ctx, &grvWireRequest{Priority: txnpb.PriorityDefault, TransactionCount: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), reply.Version)
}

func TestServerGetReadVersionRespectsContextCancellation(t *testing.T) {
	cfg := Config{GRVBatchTime: time.Hour, GRVProxyCount: 1, MaxRequestsToStart: 0}
	proxy := New(cfg, queue.NewGRVQueue(), clock.NewEpochState(), nil)
	server := NewServer(proxy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := server.GetReadVersion(ctx, &grvWireRequest{Priority: txnpb.PriorityDefault})
	assert.Error(t, err)
}
