package resolvers

import (
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/pingcap-incubator/txnproxy/internal/txnstate"
)

// IsMetadataMutation reports whether a mutation's key touches the
// system key space, making its whole transaction a txn-state
// transaction (spec.md section 4.2, step 2). Every key whose first byte
// is 0xff counts as a system key.
func IsMetadataMutation(m txnpb.Mutation) bool {
	return len(m.Param1) > 0 && m.Param1[0] == 0xff
}

// databaseLockedKeyEnd brackets the lock-detection read-conflict range
// appended to non-lock-aware txn-state transactions. It must share
// txnstate.DatabaseLockedKey's exact bytes: this range only does its
// job of conflicting against a concurrent lock-set mutation if it
// overlaps the same key the lock-set mutation actually writes.
var databaseLockedKeyEnd = append(append([]byte{}, txnstate.DatabaseLockedKey...), 0x00)

// PerResolverRequest is one resolver's view of a CommitBatch: the
// transactions routed to it, restricted to the conflict ranges that
// selected it.
type PerResolverRequest struct {
	ResolverID          int
	Transactions        []ResolverTransaction
	TxnStateTransactions int
}

// ResolverTransaction is one transaction's contribution to a single
// resolver's request.
type ResolverTransaction struct {
	OriginalIndex       int
	ReadSnapshot        uint64
	ReadConflictRanges  []txnpb.KeyRange
	WriteConflictRanges []txnpb.KeyRange
	IsTxnState          bool
}

// IndexMap restores client-visible conflict-range indices when a
// resolver reports a conflict: IndexMap[originalIndex][resolverID]
// gives the index within that resolver's read-conflict-range list.
type IndexMap map[int]map[int][]int

// Build constructs one PerResolverRequest per resolver-id present in
// kr for the given batch of transactions, implementing spec.md section
// 4.2 steps 1-4.
func Build(kr *KeyResolvers, resolverCount int, txns []txnpb.CommitTransaction) ([]PerResolverRequest, IndexMap) {
	perResolver := make(map[int]*PerResolverRequest, resolverCount)
	resolverOrder := make([]int, 0, resolverCount)
	getOrCreate := func(id int) *PerResolverRequest {
		if r, ok := perResolver[id]; ok {
			return r
		}
		r := &PerResolverRequest{ResolverID: id}
		perResolver[id] = r
		resolverOrder = append(resolverOrder, id)
		return r
	}
	for id := 0; id < resolverCount; id++ {
		getOrCreate(id)
	}

	indexMap := IndexMap{}

	for t, txn := range txns {
		isTxnState := false
		for _, m := range txn.Mutations {
			if IsMetadataMutation(m) {
				isTxnState = true
				break
			}
		}

		readRanges := txn.ReadConflictRanges
		if isTxnState && txn.Flags&txnpb.FlagLockAware == 0 {
			readRanges = append(append([]txnpb.KeyRange{}, readRanges...), txnpb.KeyRange{
				Begin: txnstate.DatabaseLockedKey,
				End:   databaseLockedKeyEnd,
			})
		}

		selected := map[int]bool{}
		for rangeIdx, rc := range readRanges {
			resolverIDs := kr.ResolversFor(rc.Begin, rc.End, txn.ReadSnapshot)
			for _, rid := range resolverIDs {
				selected[rid] = true
				r := getOrCreate(rid)
				rt := findOrAppendTxn(r, t, txn.ReadSnapshot, isTxnState)
				rt.ReadConflictRanges = append(rt.ReadConflictRanges, rc)
				if indexMap[t] == nil {
					indexMap[t] = map[int][]int{}
				}
				indexMap[t][rid] = append(indexMap[t][rid], rangeIdx)
			}
		}
		if isTxnState {
			selected[0] = true
			r := getOrCreate(0)
			rt := findOrAppendTxn(r, t, txn.ReadSnapshot, true)
			rt.ReadConflictRanges = mergeMetadataMutations(rt.ReadConflictRanges, txn.Mutations)
		}

		for _, wc := range txn.WriteConflictRanges {
			rids, ok := kr.LatestResolverFor(wc.Begin, wc.End)
			if !ok {
				continue
			}
			for _, rid := range rids {
				selected[rid] = true
				r := getOrCreate(rid)
				rt := findOrAppendTxn(r, t, txn.ReadSnapshot, isTxnState)
				rt.WriteConflictRanges = append(rt.WriteConflictRanges, wc)
			}
		}
	}

	// Cross-resolver bookkeeping: pad every resolver's txn-state count
	// to match (spec.md section 4.2, step 4).
	maxTxnState := 0
	for _, id := range resolverOrder {
		if perResolver[id].TxnStateTransactions > maxTxnState {
			maxTxnState = perResolver[id].TxnStateTransactions
		}
	}
	out := make([]PerResolverRequest, 0, len(resolverOrder))
	for _, id := range resolverOrder {
		r := perResolver[id]
		r.TxnStateTransactions = maxTxnState
		out = append(out, *r)
	}
	return out, indexMap
}

func findOrAppendTxn(r *PerResolverRequest, originalIndex int, readSnapshot uint64, isTxnState bool) *ResolverTransaction {
	for i := range r.Transactions {
		if r.Transactions[i].OriginalIndex == originalIndex {
			return &r.Transactions[i]
		}
	}
	r.Transactions = append(r.Transactions, ResolverTransaction{
		OriginalIndex: originalIndex,
		ReadSnapshot:  readSnapshot,
		IsTxnState:    isTxnState,
	})
	if isTxnState {
		r.TxnStateTransactions++
	}
	return &r.Transactions[len(r.Transactions)-1]
}

func mergeMetadataMutations(ranges []txnpb.KeyRange, mutations []txnpb.Mutation) []txnpb.KeyRange {
	for _, m := range mutations {
		if IsMetadataMutation(m) {
			end := append(append([]byte{}, m.Param1...), 0x00)
			ranges = append(ranges, txnpb.KeyRange{Begin: m.Param1, End: end})
		}
	}
	return ranges
}
