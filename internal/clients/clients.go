// Package clients specifies the interfaces this core consumes from
// its out-of-scope collaborators — the master, the resolvers, and the
// log system (spec.md section 6, "Proxy -> master/resolver/log
// (logical)") — plus a gRPC-backed implementation of each using the
// stdlib encoding/gob wire framing documented in SPEC_FULL.md section
// 1 (no generated protobuf schema is available in this module).
package clients

import (
	"context"

	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
)

// MasterClient is the version oracle and coordinator-change channel.
type MasterClient interface {
	// GetCommitVersion requests a fresh commit version for the batch
	// identified by requestNum, reporting the most recently processed
	// request number so the master can detect and replay a dropped
	// reply.
	GetCommitVersion(ctx context.Context, req *txnpb.GetCommitVersionRequest) (*txnpb.GetCommitVersionReply, error)

	// ReportLiveCommittedVersion keeps the master's epoch-live view of
	// this proxy current, feeding the MVCC-window flow-control check.
	ReportLiveCommittedVersion(ctx context.Context, req *txnpb.ReportRawCommittedVersionRequest) error

	// GetLiveCommittedVersion answers the read-version proxy's dispatch
	// step with the database's current committed version and epoch-live
	// confirmation (spec.md section 4.4).
	GetLiveCommittedVersion(ctx context.Context, req *txnpb.GetLiveCommittedVersionRequest) (*txnpb.GetLiveCommittedVersionReply, error)
}

// ResolverClient is one shard of the conflict-set service.
type ResolverClient interface {
	ResolveTransactionBatch(ctx context.Context, req *txnpb.ResolveTransactionBatchRequest) (*txnpb.ResolveTransactionBatchReply, error)
}

// LogSystemClient is the replicated log's append/pop surface.
type LogSystemClient interface {
	Push(ctx context.Context, req *txnpb.LogPushRequest) (*txnpb.LogPushReply, error)
	PopTxs(ctx context.Context, version uint64, locality string) error

	// QueuingMetrics reports this log's currently durable version, for
	// the remote-log pop monitor's min-version computation (spec.md
	// section 4.6).
	QueuingMetrics(ctx context.Context) (uint64, error)
}

// RateKeeperClient supplies (rate, batchRate) updates and accepts
// per-tag cost reports (spec.md section 4.5).
type RateKeeperClient interface {
	GetRate(ctx context.Context, tagCounts map[string]int) (*txnpb.RateUpdate, error)
	ReportTagCosts(ctx context.Context, report *txnpb.TagCostReport) error
}
