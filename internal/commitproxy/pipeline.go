// Package commitproxy implements the commit proxy's five-phase
// pipelined commit (spec.md section 4.3), the largest single
// component of this core. Each CommitBatch moves through
// pre-resolution, resolution, post-resolution, logging, and reply;
// two ordering barriers (internal/clock.VersionBarrier) enforce that
// batches enter Phases 1, 3, and 4 strictly in local_batch_number
// order, per spec.md section 5's single-logical-thread scheduling
// model. Grounded on the teacher's commands.RunCommand orchestration
// (latch, read, validate-and-write) generalized from one transaction
// to a pipelined sequence of batches.
package commitproxy

import (
	"context"
	"sync"
	"time"

	"github.com/pingcap/errors"

	"github.com/pingcap-incubator/txnproxy/internal/batcher"
	"github.com/pingcap-incubator/txnproxy/internal/clients"
	"github.com/pingcap-incubator/txnproxy/internal/clock"
	"github.com/pingcap-incubator/txnproxy/internal/keyinfo"
	"github.com/pingcap-incubator/txnproxy/internal/metrics"
	"github.com/pingcap-incubator/txnproxy/internal/mutation"
	"github.com/pingcap-incubator/txnproxy/internal/resolvers"
	"github.com/pingcap-incubator/txnproxy/internal/tagsampler"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/pingcap-incubator/txnproxy/internal/txnstate"
)

// Config holds the commit pipeline's tunables.
type Config struct {
	ResolverCount                    int
	MaxReadTransactionLifeVersions   int64
	MaxWriteTransactionLifeVersions  int64
	ResolverCoalesceTime             time.Duration
	CommitSampleCost                 float64
}

// Pipeline owns every proxy-local structure the commit path touches:
// the epoch clock, the two ordering barriers, KeyResolvers, KeyInfo,
// the txnStateStore, and the collaborator clients. Server.Run calls
// RunBatch for one batch at a time, so its batches never overlap; the
// two barriers keep Phases 1, 3 and 4 in local_batch_number order when
// RunBatch is called for several batches concurrently.
type Pipeline struct {
	cfg Config

	epoch           *clock.EpochState
	resolvingBarrier *clock.VersionBarrier
	loggingBarrier   *clock.VersionBarrier

	keyResolvers *resolvers.KeyResolvers
	keyInfo      *keyinfo.Map
	state        *txnstate.Store
	sampler      *tagsampler.Sampler

	master    clients.MasterClient
	resolverClients []clients.ResolverClient
	logSystem clients.LogSystemClient

	lastCoalesce time.Time

	txsPopVersionsMu sync.Mutex
	txsPopVersions   []popVersionEntry
}

// New returns a Pipeline with freshly initialized proxy-local state.
func New(cfg Config, master clients.MasterClient, resolverClients []clients.ResolverClient, logSystem clients.LogSystemClient) *Pipeline {
	ki := keyinfo.New()
	return &Pipeline{
		cfg:              cfg,
		epoch:            clock.NewEpochState(),
		resolvingBarrier: clock.NewVersionBarrier(0),
		loggingBarrier:   clock.NewVersionBarrier(0),
		keyResolvers:     resolvers.NewKeyResolvers(),
		keyInfo:          ki,
		state:            txnstate.New(ki),
		sampler:          tagsampler.New(cfg.CommitSampleCost),
		master:           master,
		resolverClients:  resolverClients,
		logSystem:        logSystem,
	}
}

// Epoch exposes the pipeline's version clock for the admin surface and
// the GRV pipeline (which shares the same process in a combined
// deployment, or receives committed_version via ReportLiveCommittedVersion
// when split across processes).
func (p *Pipeline) Epoch() *clock.EpochState { return p.epoch }

// State exposes the pipeline's txnStateStore so the coordinators
// watcher (internal/txnstate.CoordinatorWatcher) can apply externally
// observed changes on the same logical store the commit path mutates.
func (p *Pipeline) State() *txnstate.Store { return p.state }

// DrainSampledCosts returns and clears the pipeline's accumulated
// per-(server, tag) sampled write costs, for forwarding to the rate
// keeper (spec.md section 4.5).
func (p *Pipeline) DrainSampledCosts() map[string]map[string]int64 { return p.sampler.DrainCosts() }

// txnOutcome is the per-transaction bookkeeping carried from Phase 3
// into Phase 5.
type txnOutcome struct {
	status       txnpb.TransactionCommitStatus
	conflictIdx  []int
}

// RunBatch drives one CommitBatch through all five phases. When it
// returns nil, every request's ReplyCh has received a CommitReply; when
// it returns an error, no reply has been sent. mem is
// released by the caller on every exit path once RunBatch returns,
// matching spec.md section 4.1's "ensure it decrements on every exit
// path" requirement at the batcher layer.
func (p *Pipeline) RunBatch(ctx context.Context, batch *batcher.CommitBatch, localBatchNumber int64) error {
	start := time.Now()
	defer func() {
		metrics.CommitBatchesTotal.Inc()
		metrics.CommitBatchSize.Observe(float64(len(batch.Requests)))
		metrics.CommitLatencySeconds.Observe(time.Since(start).Seconds())
	}()

	// Phase 1: Pre-resolution.
	if err := p.resolvingBarrier.WhenAtLeast(ctx, localBatchNumber-1); err != nil {
		return errors.Wrap(err, "commitproxy: phase 1 resolving barrier")
	}
	commitVersion, prevVersion, err := p.requestCommitVersion(ctx, localBatchNumber)
	if err != nil {
		return errors.Wrap(err, "commitproxy: phase 1 GetCommitVersion")
	}

	txns := make([]txnpb.CommitTransaction, len(batch.Requests))
	structuralErrors := make([]bool, len(batch.Requests))
	for i, req := range batch.Requests {
		out, err := rewriteVersionstamps(req.Transaction, commitVersion, i)
		if err != nil {
			structuralErrors[i] = true
		}
		txns[i] = out
	}

	// Phase 2: Resolution.
	perResolver, indexMap := resolvers.Build(p.keyResolvers, p.cfg.ResolverCount, txns)
	replies, err := p.resolveAll(ctx, perResolver, prevVersion, commitVersion)
	p.resolvingBarrier.Set(localBatchNumber)
	if err != nil {
		return errors.Wrap(err, "commitproxy: phase 2 resolution")
	}

	// Phase 3: Post-resolution.
	if err := p.loggingBarrier.WhenAtLeast(ctx, localBatchNumber-1); err != nil {
		return errors.Wrap(err, "commitproxy: phase 3 logging barrier")
	}
	p.applyOtherProxyMetadata(replies)
	outcomes := p.determineCommittedSet(txns, perResolver, replies)
	for i, failed := range structuralErrors {
		if failed {
			outcomes[i].status = txnpb.TransactionStructuralError
		}
	}
	messages := p.applyLocalMetadataAndDispatch(txns, outcomes, commitVersion)

	if err := p.waitForMVCCWindow(ctx, commitVersion); err != nil {
		return errors.Wrap(err, "commitproxy: phase 3 MVCC window")
	}

	// Phase 4: Logging.
	loggedVersion, popTo, err := p.pushLog(ctx, prevVersion, commitVersion, messages)
	p.loggingBarrier.Set(localBatchNumber)
	if err != nil {
		return errors.Wrap(err, "commitproxy: phase 4 log push")
	}
	if p.logSystem != nil {
		_ = p.logSystem.PopTxs(ctx, popTo, "")
	}

	// Phase 5: Reply.
	if err := p.reportLiveCommittedVersion(ctx, commitVersion); err != nil {
		return errors.Wrap(err, "commitproxy: phase 5 ReportLiveCommittedVersion")
	}
	p.epoch.SetCommittedVersion(int64(commitVersion))
	p.epoch.SetMinKnownCommittedVersion(int64(loggedVersion))

	p.replyToClients(batch, outcomes, commitVersion, indexMap)

	if time.Since(p.lastCoalesce) > p.cfg.ResolverCoalesceTime {
		oldest := prevVersion
		if oldest > uint64(p.cfg.MaxWriteTransactionLifeVersions) {
			oldest -= uint64(p.cfg.MaxWriteTransactionLifeVersions)
		} else {
			oldest = 0
		}
		p.keyResolvers.Coalesce(oldest)
		p.lastCoalesce = time.Now()
	}
	return nil
}

func (p *Pipeline) requestCommitVersion(ctx context.Context, requestNum int64) (commitVersion, prevVersion uint64, err error) {
	reply, err := p.master.GetCommitVersion(ctx, &txnpb.GetCommitVersionRequest{RequestNum: uint64(requestNum)})
	if err != nil {
		return 0, 0, err
	}
	for _, change := range reply.ResolverChanges {
		for _, rid := range change.ResolverIDs {
			p.keyResolvers.ApplyRangeChange(change.Range.Begin, change.Range.End, reply.Version, int(rid))
		}
	}
	return reply.Version, reply.PrevVersion, nil
}

// rewriteVersionstamps rewrites every versionstamp placeholder in txn's
// mutations with this batch's (commitVersion, txnNumInBatch) stamp. It
// returns a structural error, without mutating txn further, the moment
// any placeholder's offset is out of bounds (spec.md section 9); the
// caller must fail that transaction's commit rather than proceed with
// an un-rewritten placeholder and a stale offset suffix still attached.
func rewriteVersionstamps(txn txnpb.CommitTransaction, commitVersion uint64, txnNumInBatch int) (txnpb.CommitTransaction, error) {
	out := txn
	out.Mutations = append([]txnpb.Mutation{}, txn.Mutations...)
	stamp := mutation.EncodeVersionstamp(commitVersion, uint16(txnNumInBatch))
	for i, m := range out.Mutations {
		switch m.Kind {
		case txnpb.MutationSetVersionstampedKey:
			newKey, _, err := mutation.RewriteVersionstamp(m.Param1, stamp)
			if err != nil {
				return txn, errors.Wrap(err, "commitproxy: rewrite versionstamped key")
			}
			out.Mutations[i].Param1 = newKey
			out.WriteConflictRanges = append(out.WriteConflictRanges, txnpb.KeyRange{Begin: newKey, End: append(append([]byte{}, newKey...), 0x00)})
		case txnpb.MutationSetVersionstampedValue:
			newValue, _, err := mutation.RewriteVersionstamp(m.Param2, stamp)
			if err != nil {
				return txn, errors.Wrap(err, "commitproxy: rewrite versionstamped value")
			}
			out.Mutations[i].Param2 = newValue
		}
	}
	return out, nil
}
