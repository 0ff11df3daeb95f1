// Package grv implements the read-version proxy's pipeline (spec.md
// section 4.4, component 7): priority dequeue, a batching timer,
// causal-read confirmation via the master, and reply fan-out. Modeled
// on the teacher's commands.RunCommand single-threaded orchestration,
// generalized from one command to a per-tick dequeue loop.
package grv

import (
	"context"
	"time"

	"github.com/pingcap-incubator/txnproxy/internal/clients"
	"github.com/pingcap-incubator/txnproxy/internal/clock"
	"github.com/pingcap-incubator/txnproxy/internal/metrics"
	"github.com/pingcap-incubator/txnproxy/internal/queue"
	"github.com/pingcap-incubator/txnproxy/internal/ratelimit"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
)

var priorityLabels = map[txnpb.Priority]string{
	txnpb.PriorityBatch:     "batch",
	txnpb.PriorityDefault:   "default",
	txnpb.PriorityImmediate: "immediate",
}

func priorityLabel(p txnpb.Priority) string {
	if s, ok := priorityLabels[p]; ok {
		return s
	}
	return "unknown"
}

// Config holds the RVP's tunables (spec.md section 4.4).
type Config struct {
	GRVBatchTime       time.Duration
	GRVProxyCount      int
	MaxRequestsToStart int
	MaxQueueSize       int
}

// Proxy is the read-version pipeline's owning loop: one goroutine
// calling Tick repeatedly, exactly as spec.md section 5's scheduling
// model requires ("pinning all pipeline state to one executor
// thread").
type Proxy struct {
	cfg    Config
	queue  *queue.GRVQueue
	epoch  *clock.EpochState
	master clients.MasterClient

	normalRate *ratelimit.RateInfo
	batchRate  *ratelimit.RateInfo
	lease      *ratelimit.Lease

	throttledTags map[string]int64
}

// New returns a Proxy reading from q and consulting epoch for the
// current committed/locked state.
func New(cfg Config, q *queue.GRVQueue, epoch *clock.EpochState, master clients.MasterClient) *Proxy {
	return &Proxy{
		cfg:           cfg,
		queue:         q,
		epoch:         epoch,
		master:        master,
		normalRate:    ratelimit.NewRateInfo(5),
		batchRate:     ratelimit.NewRateInfo(5),
		lease:         ratelimit.NewLease(),
		throttledTags: map[string]int64{},
	}
}

// Enqueue admits req onto the appropriate priority FIFO, or replies
// immediately with batch_transaction_throttled when a batch-priority
// request arrives while this proxy's share of batch_rate is
// exhausted (spec.md section 4.4, "Queues").
func (p *Proxy) Enqueue(req *txnpb.GetReadVersionRequest) {
	metrics.GRVRequestsTotal.WithLabelValues(priorityLabel(req.Priority)).Inc()

	if p.cfg.MaxQueueSize > 0 && p.queue.Len() > p.cfg.MaxQueueSize {
		req.ReplyCh <- txnpb.GetReadVersionReply{Version: 1, Locked: true}
		return
	}
	if req.Priority == txnpb.PriorityBatch {
		if p.batchRate.Limit() <= 1.0/float64(maxInt(p.cfg.GRVProxyCount, 1)) {
			metrics.GRVThrottledTotal.Inc()
			req.ReplyCh <- txnpb.GetReadVersionReply{ErrorCode: 1051}
			return
		}
	}
	p.queue.Push(req)
}

// Tick runs one scheduler iteration: dequeue admitted requests up to
// MaxRequestsToStart, fetch a read version, and reply.
func (p *Proxy) Tick(ctx context.Context) error {
	if p.lease.Expired() {
		p.normalRate.Disable()
		p.batchRate.Disable()
	}

	started := 0
	queueEmptyNormal := p.queue.EmptyNormal()
	queueEmptyBatch := p.queue.EmptyBatch()
	var admitted []*txnpb.GetReadVersionRequest

	for started < p.cfg.MaxRequestsToStart {
		req := p.queue.PopHighest()
		if req == nil {
			break
		}
		tc := int(req.TransactionCount)
		if tc <= 0 {
			tc = 1
		}
		// Batch priority checks batchRate; default priority must pass
		// both normalRate and batchRate; immediate/system priority is
		// never throttled (it is admitted regardless of either budget).
		var ok bool
		switch {
		case req.Priority >= txnpb.PriorityImmediate:
			ok = true
		case req.Priority == txnpb.PriorityBatch:
			ok = p.batchRate.CanStart(started, tc)
		default:
			ok = p.normalRate.CanStart(started, tc) && p.batchRate.CanStart(started, tc)
		}
		if !ok {
			// Not admitted this tick; the request stays logically queued
			// by being pushed back for the next tick.
			p.queue.Push(req)
			break
		}
		started += tc
		admitted = append(admitted, req)
	}

	elapsed := p.cfg.GRVBatchTime
	p.normalRate.UpdateBudget(started, queueEmptyNormal, elapsed)
	p.batchRate.UpdateBudget(started, queueEmptyBatch, elapsed)

	if len(admitted) == 0 {
		return nil
	}

	version := uint64(p.epoch.CommittedVersion())
	locked := p.epoch.Locked()
	metadataVersion := p.epoch.MetadataVersion()

	// Dispatch: one GetLiveCommittedVersion call to the master covers
	// every request admitted this tick. Requests are not partitioned by
	// CAUSAL_READ_RISKY; causal-read-risky requests wait for the same
	// master call as the rest. If the master is unset or the call fails,
	// the replies carry this proxy's own epoch state.
	if p.master != nil {
		reply, err := p.master.GetLiveCommittedVersion(ctx, &txnpb.GetLiveCommittedVersionRequest{})
		if err == nil {
			version = reply.Version
			locked = reply.Locked
			metadataVersion = reply.MetadataVersion
			p.epoch.SetCommittedVersion(int64(version))
			p.epoch.SetLocked(locked)
			p.epoch.SetMetadataVersion(metadataVersion)
		}
	}

	for _, req := range admitted {
		reply := txnpb.GetReadVersionReply{
			Version:         version,
			Locked:          locked,
			MetadataVersion: metadataVersion,
		}
		if req.Flags&txnpb.FlagUseMinKnownCommittedVersion != 0 {
			reply.Version = uint64(p.epoch.MinKnownCommittedVersion())
		}
		reply.TagThrottleInfo = p.intersectThrottles(req.Tags)
		req.ReplyCh <- reply
	}
	return nil
}

func (p *Proxy) intersectThrottles(tags []string) []txnpb.TagThrottleInfo {
	now := time.Now().UnixNano()
	var out []txnpb.TagThrottleInfo
	for _, tag := range tags {
		until, ok := p.throttledTags[tag]
		if !ok {
			continue
		}
		if until <= now {
			delete(p.throttledTags, tag)
			continue
		}
		out = append(out, txnpb.TagThrottleInfo{Tag: tag, ThrottledUntilUnixNano: until})
	}
	return out
}

// ApplyRateUpdate installs a fresh (rate, batchRate) pair from the
// rate keeper and renews the lease (spec.md section 4.5).
func (p *Proxy) ApplyRateUpdate(update *txnpb.RateUpdate, leaseDuration time.Duration) {
	p.normalRate.SetRate(update.Rate)
	p.batchRate.SetRate(update.BatchRate)
	p.lease.Renew(leaseDuration)
	for tag, until := range update.ThrottledTags {
		p.throttledTags[tag] = until
	}
}

// DrainTagCounts returns and clears the queue's accumulated per-tag
// counters, for forwarding to the rate keeper.
func (p *Proxy) DrainTagCounts() map[string]int {
	return p.queue.TagCounts()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
