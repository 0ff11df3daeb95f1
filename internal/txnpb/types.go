package txnpb

import "github.com/opentracing/opentracing-go"

// MutationKind enumerates the mutation kinds from spec.md section 6.
type MutationKind uint8

const (
	MutationSet MutationKind = iota
	MutationClearRange
	MutationAddValue
	MutationBitAnd
	MutationBitOr
	MutationBitXor
	MutationMax
	MutationMin
	MutationByteMax
	MutationByteMin
	MutationAppendIfFits
	MutationCompareAndClear
	MutationSetVersionstampedKey
	MutationSetVersionstampedValue
)

// Mutation is one write within a CommitTransaction. Param1/Param2 carry the
// kind-specific operands: for MutationSet, (key, value); for
// MutationClearRange, (begin, end); for the atomic sub-kinds, (key, operand).
type Mutation struct {
	Kind   MutationKind
	Param1 []byte
	Param2 []byte
}

// KeyRange is a half-open byte-string range [Begin, End).
type KeyRange struct {
	Begin []byte
	End   []byte
}

// CommitFlags bit-packs the per-transaction flags from spec.md section 3.
type CommitFlags uint32

const (
	FlagLockAware CommitFlags = 1 << iota
	FlagReportConflictingKeys
	FlagFirstInBatch
)

// CommitTransaction is the transaction payload inside a
// CommitTransactionRequest (spec.md section 3, section 6).
type CommitTransaction struct {
	ReadSnapshot        uint64
	Mutations           []Mutation
	ReadConflictRanges   []KeyRange
	WriteConflictRanges  []KeyRange
	Flags               CommitFlags
}

// CommitTransactionRequest is the client-to-commit-proxy wire shape.
type CommitTransactionRequest struct {
	Transaction        CommitTransaction
	Tags               []string
	CommitCostEstimate  *uint64
	DebugID             string
	Span                opentracing.SpanContext

	// ReplyCh receives exactly one CommitReply for this request. The commit
	// pipeline never blocks on a slow client: the channel is buffered by one.
	ReplyCh chan CommitReply
}

// CommitReply is the commit proxy's outcome for one transaction in a batch.
type CommitReply struct {
	// Committed is true iff the transaction reached TransactionCommitted and
	// was lock-admitted (spec.md section 4.3, Phase 5).
	Committed bool

	CommitVersion   uint64
	IndexInBatch    int
	MetadataVersion []byte

	// ConflictingKeyRangeIndices is populated only when ReportConflictingKeys
	// was requested and the transaction did not commit.
	ConflictingKeyRangeIndices []int

	// ErrorCode is zero when Committed is true.
	ErrorCode int32
}

// Priority levels for GetReadVersionRequest (spec.md section 6).
type Priority int32

const (
	PriorityBatch     Priority = 0
	PriorityDefault   Priority = 256
	PriorityImmediate Priority = 512
)

// GRVFlags bit-packs GetReadVersionRequest flags.
type GRVFlags uint32

const (
	FlagCausalReadRisky            GRVFlags = 1
	FlagUseMinKnownCommittedVersion GRVFlags = 4
)

// GetReadVersionRequest is the client-to-GRV-proxy wire shape.
type GetReadVersionRequest struct {
	Priority         Priority
	Flags            GRVFlags
	TransactionCount uint32
	Tags             []string
	DebugID          string
	Span             opentracing.SpanContext

	ReplyCh chan GetReadVersionReply
}

// TagThrottleInfo is the per-tag throttle advice attached to a GRV reply.
type TagThrottleInfo struct {
	Tag           string
	ThrottledUntilUnixNano int64
}

// GetReadVersionReply is the GRV proxy's reply to a read-version request.
type GetReadVersionReply struct {
	Version          uint64
	Locked           bool
	MetadataVersion  []byte
	ProcessBusyTime  float64
	MidShardSize     int64
	TagThrottleInfo  []TagThrottleInfo

	// ErrorCode is non-zero for batch_transaction_throttled (1051); the GRV
	// proxy otherwise always replies rather than propagating an error, per
	// spec.md section 4.4 (sentinel version 1 + locked=true on queue overflow).
	ErrorCode int32
}

// GetKeyServerLocationsRequest is the admission-controlled location lookup
// from spec.md section 6.
type GetKeyServerLocationsRequest struct {
	Begin   []byte
	End     []byte
	Limit   int
	Reverse bool
}
