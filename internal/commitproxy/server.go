package commitproxy

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/pingcap-incubator/txnproxy/internal/batcher"
	"github.com/pingcap-incubator/txnproxy/internal/metrics"
	"github.com/pingcap-incubator/txnproxy/internal/queue"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
)

// Server is the commit proxy's client-facing surface: it accepts
// CommitTransaction calls, feeds them to the batcher, and owns the
// single goroutine that drives batches through the Pipeline in order
// (spec.md section 5's one-executor-thread scheduling model).
type Server struct {
	pipeline *Pipeline
	batcher  *batcher.Batcher
	stream   *queue.CommitStream
	mem      *batcher.MemoryCounter
}

// NewServer wires a Pipeline to a fresh CommitStream/Batcher/MemoryCounter
// triple sized from batchCfg.
func NewServer(pipeline *Pipeline, batchCfg batcher.Config, streamCapacity int) *Server {
	stream := queue.NewCommitStream(streamCapacity)
	mem := batcher.NewMemoryCounter(batchCfg.MemBytesLimit)
	return &Server{
		pipeline: pipeline,
		batcher:  batcher.New(batchCfg, stream, mem),
		stream:   stream,
		mem:      mem,
	}
}

// commitWireRequest mirrors txnpb.CommitTransactionRequest minus its
// process-local ReplyCh, which has no wire representation.
type commitWireRequest struct {
	Transaction        txnpb.CommitTransaction
	Tags               []string
	CommitCostEstimate *uint64
	DebugID            string
	Span               opentracing.SpanContext
}

// Commit accepts one client transaction, enqueues it onto the commit
// stream, and blocks until the batch it lands in has been replied to.
func (s *Server) Commit(ctx context.Context, wire *commitWireRequest) (*txnpb.CommitReply, error) {
	req := &txnpb.CommitTransactionRequest{
		Transaction:        wire.Transaction,
		Tags:               wire.Tags,
		CommitCostEstimate: wire.CommitCostEstimate,
		DebugID:            wire.DebugID,
		Span:               wire.Span,
		ReplyCh:            make(chan txnpb.CommitReply, 1),
	}
	if !s.stream.TrySend(req) {
		metrics.MemoryLimitRejections.Inc()
		return &txnpb.CommitReply{ErrorCode: 1040}, nil
	}
	select {
	case reply := <-req.ReplyCh:
		return &reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run drives the batch-dequeue/pipeline/reply loop until stop is
// closed. Exactly one goroutine should call Run for a given Server,
// matching the single-executor-thread model the rest of this package
// assumes.
func (s *Server) Run(ctx context.Context, stop <-chan struct{}) {
	var localBatchNumber int64
	for {
		start := time.Now()
		batch, ok := s.batcher.Next(stop)
		if !ok {
			return
		}
		localBatchNumber++

		err := s.pipeline.RunBatch(ctx, batch, localBatchNumber)
		s.mem.Release(int64(batch.Bytes))
		elapsed := time.Since(start)
		s.batcher.ObserveLatency(elapsed)

		if err != nil {
			log.Error("commitproxy: batch failed", zap.Int64("localBatchNumber", localBatchNumber), zap.Error(err))
			for _, req := range batch.Requests {
				select {
				case req.ReplyCh <- txnpb.CommitReply{ErrorCode: 1021}:
				default:
				}
			}
		}
	}
}

// ServiceDesc registers Server's gRPC surface using the shared gob
// codec (no generated protobuf schema is available for this service;
// SPEC_FULL.md section 1).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "txnproxy.CommitProxy",
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CommitTransaction",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(commitWireRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*Server).Commit(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/txnproxy.CommitProxy/CommitTransaction"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*Server).Commit(ctx, req.(*commitWireRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "txnproxy.proto",
}
