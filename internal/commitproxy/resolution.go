package commitproxy

import (
	"context"
	"sync"

	"github.com/pingcap-incubator/txnproxy/internal/resolvers"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
)

// resolveAll sends one ResolveTransactionBatchRequest per configured
// resolver and waits for all replies in parallel (spec.md section 4.3,
// Phase 2).
func (p *Pipeline) resolveAll(ctx context.Context, perResolver []resolvers.PerResolverRequest, prevVersion, version uint64) ([]*txnpb.ResolveTransactionBatchReply, error) {
	replies := make([]*txnpb.ResolveTransactionBatchReply, len(perResolver))
	errs := make([]error, len(perResolver))

	var wg sync.WaitGroup
	for i, pr := range perResolver {
		i, pr := i, pr
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := &txnpb.ResolveTransactionBatchRequest{
				PrevVersion:              prevVersion,
				Version:                  version,
				TxnStateTransactionCount: pr.TxnStateTransactions,
			}
			for _, t := range pr.Transactions {
				req.Transactions = append(req.Transactions, txnpb.ResolveTransaction{
					ReadSnapshot:        t.ReadSnapshot,
					ReadConflictRanges:  t.ReadConflictRanges,
					WriteConflictRanges: t.WriteConflictRanges,
				})
			}
			if pr.ResolverID >= len(p.resolverClients) {
				errs[i] = errNoResolverClient(pr.ResolverID)
				return
			}
			reply, err := p.resolverClients[pr.ResolverID].ResolveTransactionBatch(ctx, req)
			if err != nil {
				errs[i] = err
				return
			}
			replies[i] = reply
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return replies, nil
}

type noResolverClientError int

func (n noResolverClientError) Error() string {
	return "commitproxy: no client configured for resolver"
}

func errNoResolverClient(id int) error { return noResolverClientError(id) }
