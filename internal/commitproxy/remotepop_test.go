package commitproxy

import (
	"context"
	"testing"
	"time"

	"github.com/pingcap-incubator/txnproxy/internal/clients"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemoteLog struct {
	version  uint64
	popCalls []uint64
}

func (f *fakeRemoteLog) Push(ctx context.Context, req *txnpb.LogPushRequest) (*txnpb.LogPushReply, error) {
	return &txnpb.LogPushReply{}, nil
}

func (f *fakeRemoteLog) PopTxs(ctx context.Context, version uint64, locality string) error {
	f.popCalls = append(f.popCalls, version)
	return nil
}

func (f *fakeRemoteLog) QueuingMetrics(ctx context.Context) (uint64, error) {
	return f.version, nil
}

func TestRemotePopMonitorPopsToMinReportedVersion(t *testing.T) {
	p := New(testConfig(), &fakeMaster{}, []clients.ResolverClient{fakeResolver{}}, nil)
	p.recordPopVersion(10, 100)
	p.recordPopVersion(20, 200)
	p.recordPopVersion(30, 300)

	fast := &fakeRemoteLog{version: 25}
	slow := &fakeRemoteLog{version: 15}
	monitor := NewRemotePopMonitor(p, []clients.LogSystemClient{fast, slow}, "dc1", time.Millisecond)

	monitor.tick(context.Background())

	require.Len(t, fast.popCalls, 1)
	require.Len(t, slow.popCalls, 1)
	assert.Equal(t, uint64(100), fast.popCalls[0])
	assert.Equal(t, uint64(100), slow.popCalls[0])
}

func TestRemotePopMonitorSkipsWhenNoHistoryCovers(t *testing.T) {
	p := New(testConfig(), &fakeMaster{}, []clients.ResolverClient{fakeResolver{}}, nil)
	p.recordPopVersion(100, 1000)

	remote := &fakeRemoteLog{version: 5}
	monitor := NewRemotePopMonitor(p, []clients.LogSystemClient{remote}, "dc1", time.Millisecond)

	monitor.tick(context.Background())

	assert.Empty(t, remote.popCalls)
}
