package commitproxy

import (
	"context"
	"time"

	"github.com/pingcap-incubator/txnproxy/internal/keyinfo"
	"github.com/pingcap-incubator/txnproxy/internal/resolvers"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
)

// applyOtherProxyMetadata replays the metadata mutations of
// transactions committed by another proxy's batch, as reported via
// each resolver's stateMutations, with no log emission of its own
// (spec.md section 4.3, Phase 3, "Apply other-proxy metadata effects").
func (p *Pipeline) applyOtherProxyMetadata(replies []*txnpb.ResolveTransactionBatchReply) {
	seen := map[[2]uint64]bool{}
	for _, reply := range replies {
		if reply == nil {
			continue
		}
		for _, entry := range reply.StateMutations {
			if !entry.Committed {
				continue
			}
			key := [2]uint64{entry.Version, uint64(entry.TxnIndex)}
			if seen[key] {
				continue
			}
			seen[key] = true
			for _, m := range entry.Mutations {
				_, _ = p.state.Apply(m)
			}
		}
	}
}

// determineCommittedSet combines each transaction's per-resolver
// commit statuses by keeping the numerically largest one
// (TransactionCommitted < TransactionConflict < TransactionTooOld), so
// a transaction stays committed only if every resolver it was sent to
// committed it (spec.md section 4.3, "Determine committed set"), and
// records conflicting-read-conflict-range indices for
// transactions that requested them.
func (p *Pipeline) determineCommittedSet(txns []txnpb.CommitTransaction, perResolver []resolvers.PerResolverRequest, replies []*txnpb.ResolveTransactionBatchReply) []txnOutcome {
	outcomes := make([]txnOutcome, len(txns))
	for i := range outcomes {
		outcomes[i].status = txnpb.TransactionCommitted
	}

	for ri, pr := range perResolver {
		if ri >= len(replies) || replies[ri] == nil {
			continue
		}
		reply := replies[ri]
		for localIdx, rt := range pr.Transactions {
			if localIdx >= len(reply.Committed) {
				continue
			}
			t := rt.OriginalIndex
			if reply.Committed[localIdx] > outcomes[t].status {
				outcomes[t].status = reply.Committed[localIdx]
			}
			if conflicting, ok := reply.ConflictingKeyRangeMap[localIdx]; ok {
				outcomes[t].conflictIdx = append(outcomes[t].conflictIdx, conflicting...)
			}
		}
	}

	_, mustContainSystem := p.state.Get([]byte("\xff/mustContainSystemMutationsKey"))
	if mustContainSystem {
		for t, txn := range txns {
			if outcomes[t].status != txnpb.TransactionCommitted {
				continue
			}
			if !touchesSystemKeys(txn) {
				outcomes[t].status = txnpb.TransactionConflict
			}
		}
	}
	return outcomes
}

func touchesSystemKeys(txn txnpb.CommitTransaction) bool {
	for _, m := range txn.Mutations {
		if resolvers.IsMetadataMutation(m) {
			return true
		}
	}
	return false
}

// applyLocalMetadataAndDispatch walks the committed, lock-satisfying
// transactions in batch order. Each metadata mutation is applied to the
// txnStateStore and is not added to the returned messages; every other
// mutation is dispatched to its shard's storage-server tags (spec.md section
// 4.3, "Apply local metadata and dispatch" + "Dispatch mutations to
// tags").
func (p *Pipeline) applyLocalMetadataAndDispatch(txns []txnpb.CommitTransaction, outcomes []txnOutcome, commitVersion uint64) []txnpb.TaggedMessage {
	locked := p.state.Locked()
	var messages []txnpb.TaggedMessage

	totalCosts := 0.0
	for t, txn := range txns {
		if !p.admitted(outcomes[t].status, txn.Flags, locked) {
			continue
		}
		for _, m := range txn.Mutations {
			totalCosts += float64(len(m.Param1) + len(m.Param2))
		}
	}

	for t, txn := range txns {
		if !p.admitted(outcomes[t].status, txn.Flags, locked) {
			continue
		}
		for _, m := range txn.Mutations {
			if resolvers.IsMetadataMutation(m) {
				_, _ = p.state.Apply(m)
				continue
			}
			messages = append(messages, p.dispatchMutation(m, totalCosts)...)
		}
	}
	return messages
}

func (p *Pipeline) admitted(status txnpb.TransactionCommitStatus, flags txnpb.CommitFlags, locked bool) bool {
	if status != txnpb.TransactionCommitted {
		return false
	}
	if locked && flags&txnpb.FlagLockAware == 0 {
		return false
	}
	return true
}

func (p *Pipeline) dispatchMutation(m txnpb.Mutation, totalCosts float64) []txnpb.TaggedMessage {
	cost := float64(len(m.Param1) + len(m.Param2))
	sampled := p.sampler.ShouldSample(cost, totalCosts)

	if m.Kind == txnpb.MutationClearRange {
		entries := p.keyInfo.Intersecting(m.Param1, m.Param2)
		tagSet := map[string]bool{}
		var sourceServers []string
		for _, e := range entries {
			entry, ok := e.Value.(*keyinfo.Entry)
			if !ok {
				continue
			}
			for _, tag := range entry.Tags {
				tagSet[tag] = true
			}
			sourceServers = append(sourceServers, entry.SourceServers...)
		}
		var tags []string
		for tag := range tagSet {
			tags = append(tags, tag)
		}
		if sampled {
			p.sampler.AttributeCost(sourceServers, tags, int64(cost))
		}
		return []txnpb.TaggedMessage{{Tags: tags, Payload: append(append([]byte{}, m.Param1...), m.Param2...)}}
	}

	entry, _ := p.keyInfo.Lookup(m.Param1)
	tags := p.keyInfo.TagsFor(m.Param1)
	if sampled && entry != nil {
		p.sampler.AttributeCost(entry.SourceServers, tags, int64(cost))
	}
	return []txnpb.TaggedMessage{{Tags: tags, Payload: append(append([]byte{}, m.Param1...), m.Param2...)}}
}

// waitForMVCCWindow blocks cooperatively until committed_version is
// within MaxReadTransactionLifeVersions of commitVersion (spec.md
// section 4.3, "MVCC-window flow control").
func (p *Pipeline) waitForMVCCWindow(ctx context.Context, commitVersion uint64) error {
	for {
		gap := int64(commitVersion) - p.epoch.CommittedVersion()
		if gap <= p.cfg.MaxReadTransactionLifeVersions {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}
