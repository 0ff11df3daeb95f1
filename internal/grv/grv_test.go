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

func newTestProxy() *Proxy {
	cfg := Config{GRVBatchTime: time.Millisecond, GRVProxyCount: 1, MaxRequestsToStart: 100}
	p := New(cfg, queue.NewGRVQueue(), clock.NewEpochState(), nil)
	p.normalRate.SetRate(1000)
	p.batchRate.SetRate(1000)
	p.lease.Renew(time.Hour)
	return p
}

func TestTickRepliesToAdmittedRequests(t *testing.T) {
	p := newTestProxy()
	p.epoch.SetCommittedVersion(42)

	reply := make(chan txnpb.GetReadVersionReply, 1)
	p.Enqueue(&txnpb.GetReadVersionRequest{
		Priority:         txnpb.PriorityDefault,
		TransactionCount: 1,
		ReplyCh:          reply,
	})

	require.NoError(t, p.Tick(context.Background()))
	select {
	case r := <-reply:
		assert.Equal(t, uint64(42), r.Version)
	default:
		t.Fatal("expected a reply")
	}
}

func TestTickSubstitutesMinKnownCommittedVersion(t *testing.T) {
	p := newTestProxy()
	p.epoch.SetCommittedVersion(100)
	p.epoch.SetMinKnownCommittedVersion(50)

	reply := make(chan txnpb.GetReadVersionReply, 1)
	p.Enqueue(&txnpb.GetReadVersionRequest{
		Priority:         txnpb.PriorityDefault,
		TransactionCount: 1,
		Flags:            txnpb.FlagUseMinKnownCommittedVersion,
		ReplyCh:          reply,
	})
	require.NoError(t, p.Tick(context.Background()))
	r := <-reply
	assert.Equal(t, uint64(50), r.Version)
}

type fakeMaster struct {
	reply txnpb.GetLiveCommittedVersionReply
}

func (f *fakeMaster) GetCommitVersion(ctx context.Context, req *txnpb.GetCommitVersionRequest) (*txnpb.GetCommitVersionReply, error) {
	return nil, nil
}

func (f *fakeMaster) ReportLiveCommittedVersion(ctx context.Context, req *txnpb.ReportRawCommittedVersionRequest) error {
	return nil
}

func (f *fakeMaster) GetLiveCommittedVersion(ctx context.Context, req *txnpb.GetLiveCommittedVersionRequest) (*txnpb.GetLiveCommittedVersionReply, error) {
	return &f.reply, nil
}

func TestTickConfirmsEpochAgainstMaster(t *testing.T) {
	cfg := Config{GRVBatchTime: time.Millisecond, GRVProxyCount: 1, MaxRequestsToStart: 100}
	master := &fakeMaster{reply: txnpb.GetLiveCommittedVersionReply{Version: 99, Locked: true}}
	p := New(cfg, queue.NewGRVQueue(), clock.NewEpochState(), master)
	p.normalRate.SetRate(1000)
	p.batchRate.SetRate(1000)
	p.lease.Renew(time.Hour)
	p.epoch.SetCommittedVersion(1)

	reply := make(chan txnpb.GetReadVersionReply, 1)
	p.Enqueue(&txnpb.GetReadVersionRequest{Priority: txnpb.PriorityDefault, TransactionCount: 1, ReplyCh: reply})

	require.NoError(t, p.Tick(context.Background()))
	r := <-reply
	assert.Equal(t, uint64(99), r.Version)
	assert.True(t, r.Locked)
	assert.Equal(t, int64(99), p.epoch.CommittedVersion())
}

func TestEnqueueRepliesWithSentinelWhenQueueOverflows(t *testing.T) {
	cfg := Config{GRVBatchTime: time.Millisecond, GRVProxyCount: 1, MaxRequestsToStart: 100, MaxQueueSize: 1}
	p := New(cfg, queue.NewGRVQueue(), clock.NewEpochState(), nil)
	p.normalRate.SetRate(1000)
	p.batchRate.SetRate(1000)

	p.Enqueue(&txnpb.GetReadVersionRequest{Priority: txnpb.PriorityDefault, ReplyCh: make(chan txnpb.GetReadVersionReply, 1)})
	p.Enqueue(&txnpb.GetReadVersionRequest{Priority: txnpb.PriorityDefault, ReplyCh: make(chan txnpb.GetReadVersionReply, 1)})

	reply := make(chan txnpb.GetReadVersionReply, 1)
	p.Enqueue(&txnpb.GetReadVersionRequest{Priority: txnpb.PriorityDefault, ReplyCh: reply})

	r := <-reply
	assert.Equal(t, uint64(1), r.Version)
	assert.True(t, r.Locked)
	assert.Zero(t, r.ErrorCode)
}

func TestEnqueueThrottlesBatchPriorityWhenShareExhausted(t *testing.T) {
	p := newTestProxy()
	p.batchRate.SetRate(0)

	reply := make(chan txnpb.GetReadVersionReply, 1)
	p.Enqueue(&txnpb.GetReadVersionRequest{Priority: txnpb.PriorityBatch, ReplyCh: reply})
	r := <-reply
	assert.Equal(t, int32(1051), r.ErrorCode)
}

func TestTickNeverThrottlesImmediatePriority(t *testing.T) {
	p := newTestProxy()
	p.normalRate.Disable()
	p.batchRate.Disable()
	p.epoch.SetCommittedVersion(7)

	reply := make(chan txnpb.GetReadVersionReply, 1)
	p.Enqueue(&txnpb.GetReadVersionRequest{Priority: txnpb.PriorityImmediate, TransactionCount: 1, ReplyCh: reply})

	require.NoError(t, p.Tick(context.Background()))
	select {
	case r := <-reply:
		assert.Equal(t, uint64(7), r.Version)
	default:
		t.Fatal("expected immediate priority to be admitted despite disabled rate gates")
	}
}

func TestTickThrottlesDefaultPriorityButNotBatchRate(t *testing.T) {
	p := newTestProxy()
	p.normalRate.Disable()
	p.epoch.SetCommittedVersion(7)

	reply := make(chan txnpb.GetReadVersionReply, 1)
	p.Enqueue(&txnpb.GetReadVersionRequest{Priority: txnpb.PriorityDefault, TransactionCount: 1, ReplyCh: reply})

	require.NoError(t, p.Tick(context.Background()))
	select {
	case <-reply:
		t.Fatal("default priority should stay queued while normalRate is disabled")
	default:
	}
}
