package clients

import (
	"context"

	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"google.golang.org/grpc"
)

// DialOptions is the shared grpc.DialOption set every client below
// needs to select the gob codec instead of protobuf, mirroring the
// teacher's kv/main.go keepalive.ClientParameters usage for the rest
// of the connection's behavior.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(gobCodecName)),
		grpc.WithInsecure(),
	}
}

type grpcMasterClient struct{ conn *grpc.ClientConn }

// NewMasterClient returns a MasterClient backed by conn.
func NewMasterClient(conn *grpc.ClientConn) MasterClient { return grpcMasterClient{conn} }

func (c grpcMasterClient) GetCommitVersion(ctx context.Context, req *txnpb.GetCommitVersionRequest) (*txnpb.GetCommitVersionReply, error) {
	reply := new(txnpb.GetCommitVersionReply)
	if err := c.conn.Invoke(ctx, "/txnproxy.Master/GetCommitVersion", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c grpcMasterClient) ReportLiveCommittedVersion(ctx context.Context, req *txnpb.ReportRawCommittedVersionRequest) error {
	return c.conn.Invoke(ctx, "/txnproxy.Master/ReportLiveCommittedVersion", req, new(struct{}))
}

func (c grpcMasterClient) GetLiveCommittedVersion(ctx context.Context, req *txnpb.GetLiveCommittedVersionRequest) (*txnpb.GetLiveCommittedVersionReply, error) {
	reply := new(txnpb.GetLiveCommittedVersionReply)
	if err := c.conn.Invoke(ctx, "/txnproxy.Master/GetLiveCommittedVersion", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

type grpcResolverClient struct{ conn *grpc.ClientConn }

// NewResolverClient returns a ResolverClient backed by conn.
func NewResolverClient(conn *grpc.ClientConn) ResolverClient { return grpcResolverClient{conn} }

func (c grpcResolverClient) ResolveTransactionBatch(ctx context.Context, req *txnpb.ResolveTransactionBatchRequest) (*txnpb.ResolveTransactionBatchReply, error) {
	reply := new(txnpb.ResolveTransactionBatchReply)
	if err := c.conn.Invoke(ctx, "/txnproxy.Resolver/ResolveTransactionBatch", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

type grpcLogSystemClient struct{ conn *grpc.ClientConn }

// NewLogSystemClient returns a LogSystemClient backed by conn.
func NewLogSystemClient(conn *grpc.ClientConn) LogSystemClient { return grpcLogSystemClient{conn} }

func (c grpcLogSystemClient) Push(ctx context.Context, req *txnpb.LogPushRequest) (*txnpb.LogPushReply, error) {
	reply := new(txnpb.LogPushReply)
	if err := c.conn.Invoke(ctx, "/txnproxy.LogSystem/Push", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c grpcLogSystemClient) PopTxs(ctx context.Context, version uint64, locality string) error {
	type popTxsRequest struct {
		Version  uint64
		Locality string
	}
	return c.conn.Invoke(ctx, "/txnproxy.LogSystem/PopTxs", &popTxsRequest{version, locality}, new(struct{}))
}

func (c grpcLogSystemClient) QueuingMetrics(ctx context.Context) (uint64, error) {
	var version uint64
	if err := c.conn.Invoke(ctx, "/txnproxy.LogSystem/QueuingMetrics", new(struct{}), &version); err != nil {
		return 0, err
	}
	return version, nil
}

type grpcRateKeeperClient struct{ conn *grpc.ClientConn }

// NewRateKeeperClient returns a RateKeeperClient backed by conn.
func NewRateKeeperClient(conn *grpc.ClientConn) RateKeeperClient { return grpcRateKeeperClient{conn} }

func (c grpcRateKeeperClient) GetRate(ctx context.Context, tagCounts map[string]int) (*txnpb.RateUpdate, error) {
	type getRateRequest struct{ TagCounts map[string]int }
	reply := new(txnpb.RateUpdate)
	if err := c.conn.Invoke(ctx, "/txnproxy.RateKeeper/GetRate", &getRateRequest{tagCounts}, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c grpcRateKeeperClient) ReportTagCosts(ctx context.Context, report *txnpb.TagCostReport) error {
	return c.conn.Invoke(ctx, "/txnproxy.RateKeeper/ReportTagCosts", report, new(struct{}))
}
