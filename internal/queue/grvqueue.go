// Package queue holds the read-version proxy's three priority FIFOs and
// the commit proxy's single commit-request stream (spec.md section 4,
// component 3). Modeled on the teacher's latches.Latches in spirit —
// a small mutex-guarded structure with no external dependency, since
// nothing in the retrieval pack offers a ready-made priority FIFO that
// fits the three-tier system/default/batch shape spec.md section 4.4
// names.
package queue

import (
	"container/list"
	"sync"

	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
)

// GRVQueue holds pending GetReadVersionRequests in three FIFOs, drained
// by the scheduler's timer tick from highest to lowest priority.
type GRVQueue struct {
	mu      sync.Mutex
	system  *list.List
	normal  *list.List
	batch   *list.List
	tagHits map[string]int
}

// NewGRVQueue returns an empty queue.
func NewGRVQueue() *GRVQueue {
	return &GRVQueue{
		system:  list.New(),
		normal:  list.New(),
		batch:   list.New(),
		tagHits: make(map[string]int),
	}
}

// Push enqueues req on its priority's FIFO and bumps per-tag counters.
func (q *GRVQueue) Push(req *txnpb.GetReadVersionRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case req.Priority >= txnpb.PriorityImmediate:
		q.system.PushBack(req)
	case req.Priority >= txnpb.PriorityDefault:
		q.normal.PushBack(req)
	default:
		q.batch.PushBack(req)
	}
	for _, tag := range req.Tags {
		q.tagHits[tag]++
	}
}

// PopHighest removes and returns the request at the front of the
// highest-priority non-empty FIFO, or nil if all are empty.
func (q *GRVQueue) PopHighest() *txnpb.GetReadVersionRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, l := range []*list.List{q.system, q.normal, q.batch} {
		if front := l.Front(); front != nil {
			l.Remove(front)
			return front.Value.(*txnpb.GetReadVersionRequest)
		}
	}
	return nil
}

// EmptyBatch reports whether the batch-priority FIFO is currently
// empty, used by RateInfo.UpdateBudget's empty-queue budget cap.
func (q *GRVQueue) EmptyBatch() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.batch.Len() == 0
}

// EmptyNormal reports whether the default-priority FIFO is empty.
func (q *GRVQueue) EmptyNormal() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.normal.Len() == 0
}

// Len returns the total number of queued requests across all three
// priorities.
func (q *GRVQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.system.Len() + q.normal.Len() + q.batch.Len()
}

// TagCounts drains and returns the accumulated per-tag hit counters,
// for forwarding to the rate keeper alongside each rate request
// (spec.md section 4.5).
func (q *GRVQueue) TagCounts() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.tagHits
	q.tagHits = make(map[string]int)
	return out
}
