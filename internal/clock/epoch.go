// Package clock holds the commit proxy's process-wide version clock and
// epoch state (spec.md section 4, component 1), modeled on the
// lock-free atomic-pointer style of the teacher's
// scheduler/server/tso.TimestampOracle.
package clock

import "go.uber.org/atomic"

// EpochState is the single owned aggregate of mutable proxy-wide version
// state described in spec.md section 5 ("Global mutable proxy state").
// It is safe for concurrent use; the commit pipeline's single logical
// thread of execution is the only writer of CommittedVersion,
// MinKnownCommittedVersion and MetadataVersion, but readers (the admin
// HTTP surface, metrics) may observe it from other goroutines.
type EpochState struct {
	committedVersion         atomic.Int64
	minKnownCommittedVersion atomic.Int64
	locked                   atomic.Bool
	metadataVersion          atomic.String
	localBatchNumber         atomic.Int64
}

// NewEpochState returns a fresh EpochState with all versions at zero.
func NewEpochState() *EpochState {
	return &EpochState{}
}

func (e *EpochState) CommittedVersion() int64 { return e.committedVersion.Load() }

// SetCommittedVersion advances committed_version. Callers must ensure
// monotonicity (spec.md section 5, "committed_version is monotonic
// non-decreasing"); this type does not re-check it so that the reporter
// in Phase 5 may set it exactly once per batch without a CAS loop.
func (e *EpochState) SetCommittedVersion(v int64) { e.committedVersion.Store(v) }

func (e *EpochState) MinKnownCommittedVersion() int64 { return e.minKnownCommittedVersion.Load() }
func (e *EpochState) SetMinKnownCommittedVersion(v int64) {
	e.minKnownCommittedVersion.Store(v)
}

func (e *EpochState) Locked() bool     { return e.locked.Load() }
func (e *EpochState) SetLocked(v bool) { e.locked.Store(v) }

// MetadataVersion is the opaque versionstamp bytes last written to the
// \xff/metadataVersion key, stored as a string for atomic.String's CAS
// support even though it represents a byte string on the wire.
func (e *EpochState) MetadataVersion() []byte { return []byte(e.metadataVersion.Load()) }
func (e *EpochState) SetMetadataVersion(v []byte) {
	e.metadataVersion.Store(string(v))
}

// NextLocalBatchNumber returns the next monotonic local_batch_number,
// starting at 1 (spec.md section 3, "Allocated on batcher dispatch").
func (e *EpochState) NextLocalBatchNumber() int64 {
	return e.localBatchNumber.Inc()
}
