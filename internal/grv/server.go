package grv

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"google.golang.org/grpc"

	"github.com/pingcap-incubator/txnproxy/internal/queue"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
)

// Server is the read-version proxy's client-facing surface: it accepts
// GetReadVersion calls, enqueues them onto the priority queue, and
// owns the single goroutine that calls Proxy.Tick on a fixed cadence
// (spec.md section 4.4).
type Server struct {
	proxy *Proxy
	queue *queue.GRVQueue
}

// NewServer wires proxy to a fresh GRVQueue.
func NewServer(proxy *Proxy) *Server {
	return &Server{proxy: proxy, queue: proxy.queue}
}

// grvWireRequest mirrors txnpb.GetReadVersionRequest minus its
// process-local ReplyCh.
type grvWireRequest struct {
	Priority         txnpb.Priority
	Flags            txnpb.GRVFlags
	TransactionCount uint32
	Tags             []string
	DebugID          string
	Span             opentracing.SpanContext
}

// GetReadVersion accepts one client request and blocks until a Tick
// admits and replies to it.
func (s *Server) GetReadVersion(ctx context.Context, wire *grvWireRequest) (*txnpb.GetReadVersionReply, error) {
	req := &txnpb.GetReadVersionRequest{
		Priority:         wire.Priority,
		Flags:            wire.Flags,
		TransactionCount: wire.TransactionCount,
		Tags:             wire.Tags,
		DebugID:          wire.DebugID,
		Span:             wire.Span,
		ReplyCh:          make(chan txnpb.GetReadVersionReply, 1),
	}
	s.proxy.Enqueue(req)
	select {
	case reply := <-req.ReplyCh:
		return &reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run calls Tick every cfg.GRVBatchTime until stop is closed.
func (s *Server) Run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(s.proxy.cfg.GRVBatchTime)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = s.proxy.Tick(ctx)
		}
	}
}

// ServiceDesc registers Server's gRPC surface using the shared gob
// codec (no generated protobuf schema is available for this service;
// SPEC_FULL.md section 1).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "txnproxy.GRVProxy",
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetReadVersion",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(grvWireRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*Server).GetReadVersion(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/txnproxy.GRVProxy/GetReadVersion"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*Server).GetReadVersion(ctx, req.(*grvWireRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "txnproxy.proto",
}
