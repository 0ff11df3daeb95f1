// Package batcher implements the commit batcher (spec.md section 4,
// component 4; section 4.1): the adaptive time/size windowing that
// turns the raw commit-request stream into a sequence of CommitBatch
// units, plus the memory-pressure backpressure counter and the
// EMA-driven interval retuning after each batch's reply. Modeled on
// the teacher's commands.RunCommand orchestration in spirit (a small
// owning loop around a channel of work), generalized to batch instead
// of latch a single command.
package batcher

import (
	"math/rand"
	"time"

	"github.com/pingcap-incubator/txnproxy/internal/metrics"
	"github.com/pingcap-incubator/txnproxy/internal/queue"
	"github.com/pingcap-incubator/txnproxy/internal/ratelimit"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
)

// latencyEFoldingTime is the e-folding time, in seconds, of the EMA
// driving the next commit_batch_interval from observed batch latency
// (spec.md section 4.1). A spike or a recovery is about two-thirds
// (1 - 1/e) forgotten after roughly this long, matching the smoothing the rate
// keeper uses elsewhere for per-proxy rate estimates.
const latencyEFoldingTime = 5.0

// Config holds the batcher's tunables (spec.md section 4.1 and section
// 9's glossary of dynamic-batching/memory-pressure constants).
type Config struct {
	MaxBatchInterval          time.Duration
	CommitBatchIntervalFromIdle time.Duration
	MinCommitBatchInterval     time.Duration
	MaxCommitBatchInterval     time.Duration
	TransactionSizeLimit      int
	MaxBatchCount             int
	MemBytesLimit             int64
	LargeTransactionThreshold int
}

// CommitBatch is one dispatched unit: an ordered set of requests that
// share a single commit version once Phase 1 assigns it.
type CommitBatch struct {
	Requests []*txnpb.CommitTransactionRequest
	Bytes    int
}

// MemoryCounter is the process-wide commit_batches_mem_bytes tracker
// (spec.md section 4.1, "Memory-pressure policy"). It is a plain,
// unsynchronized counter: the goroutine running Server.Run makes both
// the TryAcquire calls (through Batcher.Next) and the Release calls.
// Release is the caller's responsibility on every exit path.
type MemoryCounter struct {
	limit   int64
	current int64
}

// NewMemoryCounter returns a counter capped at limit bytes.
func NewMemoryCounter(limit int64) *MemoryCounter {
	return &MemoryCounter{limit: limit}
}

// TryAcquire reserves bytes if doing so would not exceed the limit.
func (m *MemoryCounter) TryAcquire(bytes int64) bool {
	if m.current+bytes > m.limit {
		return false
	}
	m.current += bytes
	return true
}

// Release returns bytes to the pool. Callers must release exactly what
// they acquired, on every exit path including error and cancellation.
func (m *MemoryCounter) Release(bytes int64) {
	m.current -= bytes
	if m.current < 0 {
		m.current = 0
	}
}

// Batcher turns queue.CommitStream into CommitBatch units per the
// contract in spec.md section 4.1: a batch is emitted when the
// interval timer fires, the byte budget would be exceeded, the count
// limit is reached, or a first-in-batch request arrives.
type Batcher struct {
	cfg    Config
	stream *queue.CommitStream
	mem    *MemoryCounter

	interval      time.Duration
	lastBatchTime time.Time
	latencyEMA    *ratelimit.Smoother

	// pending carries a request pulled from the stream that overflowed
	// the previous batch's byte budget, to seed the next one.
	pending      *txnpb.CommitTransactionRequest
	pendingBytes int
}

// New returns a Batcher reading from stream, enforcing mem as the
// shared memory-pressure counter.
func New(cfg Config, stream *queue.CommitStream, mem *MemoryCounter) *Batcher {
	return &Batcher{
		cfg:           cfg,
		stream:        stream,
		mem:           mem,
		interval:      cfg.CommitBatchIntervalFromIdle,
		lastBatchTime: time.Now(),
		latencyEMA:    ratelimit.NewSmoother(latencyEFoldingTime),
	}
}

// Next blocks until a batch is ready to dispatch (the timer fires, a
// size/count limit is hit, or a first-in-batch request arrives) or stop
// is closed.
func (b *Batcher) Next(stop <-chan struct{}) (*CommitBatch, bool) {
	batch := &CommitBatch{}
	if b.pending != nil {
		batch.Requests = append(batch.Requests, b.pending)
		batch.Bytes += b.pendingBytes
		b.pending = nil
		b.pendingBytes = 0
	}
	timer := time.NewTimer(b.nextTimerDuration())
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return nil, false
		case <-timer.C:
			if len(batch.Requests) > 0 {
				return b.finish(batch), true
			}
			timer.Reset(b.nextTimerDuration())
		case req, ok := <-b.stream.Chan():
			if !ok {
				if len(batch.Requests) > 0 {
					return b.finish(batch), true
				}
				return nil, false
			}
			reqBytes := estimateBytes(req)
			if reqBytes > b.cfg.LargeTransactionThreshold {
				// large_transaction diagnostic: surfaced via a counter, not
				// rejected outright.
				metrics.LargeTransactions.Inc()
				req.Transaction.Flags |= txnpb.FlagFirstInBatch
			}
			if !b.mem.TryAcquire(int64(reqBytes)) {
				metrics.MemoryLimitRejections.Inc()
				req.ReplyCh <- txnpb.CommitReply{ErrorCode: 1040}
				continue
			}
			if batch.Bytes+reqBytes > b.cfg.TransactionSizeLimit && len(batch.Requests) > 0 {
				// This request belongs in the next batch: dispatch what has
				// accumulated so far and carry it over as that batch's seed.
				finished := b.finish(batch)
				b.pending = req
				b.pendingBytes = reqBytes
				return finished, true
			}
			batch.Requests = append(batch.Requests, req)
			batch.Bytes += reqBytes
			if batch.Bytes >= b.cfg.TransactionSizeLimit ||
				len(batch.Requests) >= b.cfg.MaxBatchCount ||
				req.Transaction.Flags&txnpb.FlagFirstInBatch != 0 {
				return b.finish(batch), true
			}
		}
	}
}

func (b *Batcher) finish(batch *CommitBatch) *CommitBatch {
	b.lastBatchTime = time.Now()
	return batch
}

func (b *Batcher) nextTimerDuration() time.Duration {
	idle := time.Since(b.lastBatchTime) > b.cfg.MaxBatchInterval
	if idle {
		return jitter(b.cfg.CommitBatchIntervalFromIdle)
	}
	remaining := b.interval - time.Since(b.lastBatchTime)
	if remaining < 0 {
		remaining = 0
	}
	return jitter(remaining)
}

// ObserveLatency folds one batch's end-to-end latency into the EMA
// that drives the next commit_batch_interval, clamped to
// [MinCommitBatchInterval, MaxCommitBatchInterval] (spec.md section
// 4.1, "Dynamic batching"). A flat mean over a fixed sample window
// would let a single transient spike dominate the window for as long
// as it stays in it and then fall out abruptly; the EMA instead decays
// old observations continuously, the way ratelimit.Smoother already
// does for rate estimates.
func (b *Batcher) ObserveLatency(latency time.Duration) {
	b.latencyEMA.SetTotal(latency.Seconds())
	smoothed := b.latencyEMA.SmoothTotal()

	next := time.Duration(smoothed * float64(time.Second) * 0.5)
	if next < b.cfg.MinCommitBatchInterval {
		next = b.cfg.MinCommitBatchInterval
	}
	if next > b.cfg.MaxCommitBatchInterval {
		next = b.cfg.MaxCommitBatchInterval
	}
	b.interval = next
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	delta := time.Duration(rand.Int63n(int64(d) / 10 + 1))
	return d - delta/2
}

func estimateBytes(req *txnpb.CommitTransactionRequest) int {
	n := 0
	for _, m := range req.Transaction.Mutations {
		n += len(m.Param1) + len(m.Param2) + 8
	}
	for _, r := range req.Transaction.ReadConflictRanges {
		n += len(r.Begin) + len(r.End)
	}
	for _, r := range req.Transaction.WriteConflictRanges {
		n += len(r.Begin) + len(r.End)
	}
	return n
}
