// Package tracing provides the opentracing span helpers the commit
// and GRV pipelines use to carry a request's parent span across
// suspension points (spec.md section 3's "parent span" field on both
// request shapes). opentracing-go is in the teacher's dependency
// set via its gRPC interceptor story; this package gives it a small
// home independent of any specific tracer backend.
package tracing

import (
	opentracing "github.com/opentracing/opentracing-go"
)

// StartChildSpan starts a span named op as a child of parent, or a
// root span if parent is nil (an unsampled request).
func StartChildSpan(op string, parent opentracing.SpanContext) opentracing.Span {
	tracer := opentracing.GlobalTracer()
	if parent == nil {
		return tracer.StartSpan(op)
	}
	return tracer.StartSpan(op, opentracing.ChildOf(parent))
}

// Finish is a small helper so call sites can `defer tracing.Finish(span)`
// without importing opentracing directly.
func Finish(span opentracing.Span) {
	if span != nil {
		span.Finish()
	}
}
