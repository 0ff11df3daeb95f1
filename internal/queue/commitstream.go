package queue

import "github.com/pingcap-incubator/txnproxy/internal/txnpb"

// CommitStream is the commit proxy's single inbound request stream
// (spec.md section 4, component 3: "one stream for commit requests").
// Unlike GRVQueue it has no priority tiers — batching policy lives in
// internal/batcher, not here.
type CommitStream struct {
	ch chan *txnpb.CommitTransactionRequest
}

// NewCommitStream returns a stream buffered to capacity.
func NewCommitStream(capacity int) *CommitStream {
	return &CommitStream{ch: make(chan *txnpb.CommitTransactionRequest, capacity)}
}

// Send enqueues req, blocking if the stream is at capacity.
func (s *CommitStream) Send(req *txnpb.CommitTransactionRequest) {
	s.ch <- req
}

// TrySend enqueues req without blocking, reporting false if the stream
// is full (the caller should treat this as proxy_memory_limit_exceeded, 1040).
func (s *CommitStream) TrySend(req *txnpb.CommitTransactionRequest) bool {
	select {
	case s.ch <- req:
		return true
	default:
		return false
	}
}

// Chan exposes the receive side for the batcher's select loop.
func (s *CommitStream) Chan() <-chan *txnpb.CommitTransactionRequest {
	return s.ch
}
