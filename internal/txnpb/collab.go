package txnpb

import "github.com/opentracing/opentracing-go"

// ResolverRangeChange is one entry of the resolver-range changes a
// GetCommitVersion reply may carry (spec.md section 4.3, Phase 1).
type ResolverRangeChange struct {
	Range        KeyRange
	ResolverIDs  []int32
}

// GetCommitVersionRequest/Reply model the commit proxy's call into the
// out-of-scope master (spec.md section 6).
type GetCommitVersionRequest struct {
	RequestNum                    uint64
	MostRecentProcessedRequestNum uint64
	DebugID                       string
}

type GetCommitVersionReply struct {
	Version       uint64
	PrevVersion   uint64
	RequestNum    uint64
	ResolverChanges []ResolverRangeChange
}

// ReportRawCommittedVersionRequest is Phase 5's report to the master,
// issued before the proxy's local committed_version is updated.
type ReportRawCommittedVersionRequest struct {
	Version                 uint64
	Locked                  bool
	MetadataVersion         []byte
	MinKnownCommittedVersion uint64
}

// GetLiveCommittedVersionRequest/Reply model the read-version proxy's
// call into the master for the database's current live committed
// version (spec.md section 4.4, "Issue master.getLiveCommittedVersion
// in parallel with ... updateLastCommit"). Proxy.Tick does not read
// LastCommitTimeUnixNano.
type GetLiveCommittedVersionRequest struct {
	DebugID string
}

type GetLiveCommittedVersionReply struct {
	Version                 uint64
	Locked                  bool
	MetadataVersion         []byte
	LastCommitTimeUnixNano  int64
}

// ResolveTransactionBatchRequest is one resolver's share of a CommitBatch
// (spec.md section 4.2).
type ResolveTransactionBatchRequest struct {
	PrevVersion          uint64
	Version              uint64
	LastReceivedVersion  uint64
	Transactions         []ResolveTransaction
	TxnStateTransactionCount int
	Span                 opentracing.SpanContext
}

// ResolveTransaction is the per-transaction projection a resolver sees:
// only the conflict ranges routed to it, plus enough bookkeeping to map
// back to the transaction's original index in the batch.
type ResolveTransaction struct {
	ReadSnapshot        uint64
	ReadConflictRanges  []KeyRange
	WriteConflictRanges []KeyRange
}

// TransactionCommitStatus is a resolver's verdict for one transaction.
type TransactionCommitStatus int32

const (
	TransactionCommitted TransactionCommitStatus = iota
	TransactionConflict
	TransactionTooOld

	// TransactionStructuralError marks a transaction whose mutations
	// failed validation before resolution was ever attempted (spec.md
	// section 9, versionstamp offset out of bounds); it is assigned
	// directly by the commit proxy, never returned by a resolver.
	TransactionStructuralError
)

// StateMutationEntry carries one (version, txn) worth of metadata
// mutations a resolver replays on the commit proxy's behalf (spec.md
// section 4.3 "Apply other-proxy metadata effects").
type StateMutationEntry struct {
	Version      uint64
	TxnIndex     int
	Mutations    []Mutation
	Committed    bool
}

// ResolveTransactionBatchReply is one resolver's reply.
type ResolveTransactionBatchReply struct {
	Committed                []TransactionCommitStatus
	StateMutations           []StateMutationEntry
	ConflictingKeyRangeMap   map[int][]int // txn index -> original read-conflict-range indices
}

// LogPushRequest is the commit proxy's push to the replicated log system
// (spec.md section 4.3 Phase 4).
type LogPushRequest struct {
	PrevVersion             uint64
	CommitVersion           uint64
	KnownCommittedVersion   uint64
	MinKnownCommittedVersion uint64
	Messages                []TaggedMessage
}

// TaggedMessage is one message in the log push buffer: a serialized
// mutation addressed to a set of storage-server tags.
type TaggedMessage struct {
	Tags    []string
	Payload []byte
}

type LogPushReply struct {
	LoggedVersion uint64
	PopTo         uint64
}

// RateUpdate is what the rate keeper pushes to each proxy at
// leaseDuration/2 cadence (spec.md section 4.5).
type RateUpdate struct {
	Rate            float64
	BatchRate       float64
	ThrottledTags   map[string]int64 // tag -> throttled-until unix nano
	LeaseExpiresUnixNano int64
}

// TagCostReport is what a commit proxy forwards to the rate keeper: the
// accumulated per-(storage-server,tag) write-cost samples since the last
// report (spec.md section 4.5, "a separate coroutine collects per-tag
// transaction counts").
type TagCostReport struct {
	Costs map[string]map[string]int64 // storage server id -> tag -> sampled cost
}
