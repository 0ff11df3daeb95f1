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

type fakeMaster struct {
	version int64
}

func (f *fakeMaster) GetCommitVersion(ctx context.Context, req *txnpb.GetCommitVersionRequest) (*txnpb.GetCommitVersionReply, error) {
	f.version++
	return &txnpb.GetCommitVersionReply{Version: uint64(f.version), PrevVersion: uint64(f.version - 1)}, nil
}

func (f *fakeMaster) ReportLiveCommittedVersion(ctx context.Context, req *txnpb.ReportRawCommittedVersionRequest) error {
	return nil
}

func (f *fakeMaster) GetLiveCommittedVersion(ctx context.Context, req *txnpb.GetLiveCommittedVersionRequest) (*txnpb.GetLiveCommittedVersionReply, error) {
	return &txnpb.GetLiveCommittedVersionReply{Version: uint64(f.version)}, nil
}

type fakeResolver struct{}

func (fakeResolver) ResolveTransactionBatch(ctx context.Context, req *txnpb.ResolveTransactionBatchRequest) (*txnpb.ResolveTransactionBatchReply, error) {
	committed := make([]txnpb.TransactionCommitStatus, len(req.Transactions))
	return &txnpb.ResolveTransactionBatchReply{Committed: committed}, nil
}

func testConfig() Config {
	return Config{
		ResolverCount:                   1,
		MaxReadTransactionLifeVersions:  5_000_000,
		MaxWriteTransactionLifeVersions: 5_000_000,
		ResolverCoalesceTime:            time.Hour,
		CommitSampleCost:                100,
	}
}

func TestRunBatchCommitsAndReplies(t *testing.T) {
	p := New(testConfig(), &fakeMaster{}, []clients.ResolverClient{fakeResolver{}}, nil)

	reply := make(chan txnpb.CommitReply, 1)
	batch := &batcher.CommitBatch{Requests: []*txnpb.CommitTransactionRequest{
		{
			Transaction: txnpb.CommitTransaction{
				Mutations: []txnpb.Mutation{{Kind: txnpb.MutationSet, Param1: []byte("k"), Param2: []byte("v")}},
			},
			ReplyCh: reply,
		},
	}}

	require.NoError(t, p.RunBatch(context.Background(), batch, 1))

	r := <-reply
	assert.True(t, r.Committed)
	assert.Equal(t, uint64(1), r.CommitVersion)
	assert.Equal(t, int64(1), p.Epoch().CommittedVersion())
}

func TestRunBatchMarksTransactionTooOld(t *testing.T) {
	p := New(testConfig(), &fakeMaster{}, []clients.ResolverClient{tooOldResolver{}}, nil)

	reply := make(chan txnpb.CommitReply, 1)
	batch := &batcher.CommitBatch{Requests: []*txnpb.CommitTransactionRequest{
		{Transaction: txnpb.CommitTransaction{ReadConflictRanges: []txnpb.KeyRange{{Begin: []byte("k"), End: []byte("l")}}}, ReplyCh: reply},
	}}

	require.NoError(t, p.RunBatch(context.Background(), batch, 1))
	r := <-reply
	assert.False(t, r.Committed)
	assert.EqualValues(t, 1007, r.ErrorCode)
}

type tooOldResolver struct{}

func (tooOldResolver) ResolveTransactionBatch(ctx context.Context, req *txnpb.ResolveTransactionBatchRequest) (*txnpb.ResolveTransactionBatchReply, error) {
	return &txnpb.ResolveTransactionBatchReply{Committed: []txnpb.TransactionCommitStatus{txnpb.TransactionTooOld}}, nil
}

func TestRunBatchFailsStructuralVersionstampOffset(t *testing.T) {
	p := New(testConfig(), &fakeMaster{}, []clients.ResolverClient{fakeResolver{}}, nil)

	reply := make(chan txnpb.CommitReply, 1)
	// An offset suffix claiming the placeholder starts past the end of
	// the key body is out of bounds and must not be silently accepted.
	key := append([]byte("k"), 0xff, 0xff, 0xff, 0xff)
	batch := &batcher.CommitBatch{Requests: []*txnpb.CommitTransactionRequest{
		{
			Transaction: txnpb.CommitTransaction{
				Mutations: []txnpb.Mutation{{Kind: txnpb.MutationSetVersionstampedKey, Param1: key}},
			},
			ReplyCh: reply,
		},
	}}

	require.NoError(t, p.RunBatch(context.Background(), batch, 1))
	r := <-reply
	assert.False(t, r.Committed)
	assert.EqualValues(t, 2007, r.ErrorCode)
}
