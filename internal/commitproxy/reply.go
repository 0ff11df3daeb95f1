package commitproxy

import (
	"github.com/pingcap-incubator/txnproxy/internal/batcher"
	"github.com/pingcap-incubator/txnproxy/internal/resolvers"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
)

// replyToClients sends every transaction's outcome to its ReplyCh
// (spec.md section 4.3, Phase 5, "Send per-transaction replies").
func (p *Pipeline) replyToClients(batch *batcher.CommitBatch, outcomes []txnOutcome, commitVersion uint64, indexMap resolvers.IndexMap) {
	for i, req := range batch.Requests {
		outcome := outcomes[i]
		reply := txnpb.CommitReply{IndexInBatch: i}

		switch {
		case outcome.status == txnpb.TransactionCommitted && admittedByLock(req.Transaction.Flags, p.state.Locked()):
			reply.Committed = true
			reply.CommitVersion = commitVersion
			reply.MetadataVersion = p.epoch.MetadataVersion()

		case outcome.status == txnpb.TransactionTooOld:
			reply.ErrorCode = 1007

		case outcome.status == txnpb.TransactionStructuralError:
			reply.ErrorCode = 2007

		case req.Transaction.Flags&txnpb.FlagReportConflictingKeys != 0:
			reply.ConflictingKeyRangeIndices = outcome.conflictIdx

		default:
			reply.ErrorCode = 1020
		}

		req.ReplyCh <- reply
	}
}

func admittedByLock(flags txnpb.CommitFlags, locked bool) bool {
	return !locked || flags&txnpb.FlagLockAware != 0
}
