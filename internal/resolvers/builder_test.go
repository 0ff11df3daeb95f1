package resolvers

import (
	"testing"

	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/pingcap-incubator/txnproxy/internal/txnstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRoutesReadAndWriteConflictRangesToTheirResolvers(t *testing.T) {
	kr := NewKeyResolvers()
	kr.ApplyRangeChange([]byte("m"), []byte("z"), 50, 1)

	txns := []txnpb.CommitTransaction{{
		ReadSnapshot:        10,
		ReadConflictRanges:  []txnpb.KeyRange{{Begin: []byte("a"), End: []byte("p")}},
		WriteConflictRanges: []txnpb.KeyRange{{Begin: []byte("n"), End: []byte("o")}},
	}}

	perResolver, _ := Build(kr, 2, txns)

	byID := map[int]PerResolverRequest{}
	for _, r := range perResolver {
		byID[r.ResolverID] = r
	}
	require.Len(t, byID[0].Transactions, 1, "resolver 0 must see the read range even though it only straddles the reassignment boundary")
	require.Len(t, byID[1].Transactions, 1)
	assert.Len(t, byID[1].Transactions[0].WriteConflictRanges, 1)
}

func TestBuildLockDetectionRangeOverlapsSharedDatabaseLockedKey(t *testing.T) {
	kr := NewKeyResolvers()

	txnState := []txnpb.CommitTransaction{{
		Mutations: []txnpb.Mutation{{Kind: txnpb.MutationSet, Param1: []byte{0xff, 't'}, Param2: []byte("v")}},
	}}
	perResolver, _ := Build(kr, 1, txnState)
	require.Len(t, perResolver, 1)
	require.Len(t, perResolver[0].Transactions, 1)

	var sawLockKey bool
	for _, rc := range perResolver[0].Transactions[0].ReadConflictRanges {
		if string(rc.Begin) == string(txnstate.DatabaseLockedKey) {
			sawLockKey = true
		}
	}
	assert.True(t, sawLockKey, "non-lock-aware txn-state transaction must read-conflict on the exact key a lock-set mutation writes")
}
