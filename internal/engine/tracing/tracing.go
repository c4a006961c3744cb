// Package tracing defines the tracer capability the engine consumes. The
// engine never talks to a tracer backend directly and never reaches for a
// process-wide tracer: a Tracer is injected at handler or router
// construction, with the OpenTelemetry adapter as the stock implementation.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/topicflow/internal/engine/tracecontext"
)

// StatusCode mirrors the span status the engine can set.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

// Span is one traced unit of work.
type Span interface {
	SetStatus(code StatusCode, message string)
	AddEvent(name string, attrs map[string]any)
	End()
}

// Tracer creates spans and bridges the engine's TraceContext to the backend's
// propagation format.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]any, parent tracecontext.TraceContext) (context.Context, Span)
	Inject(tc tracecontext.TraceContext) (traceparent, tracestate string)
	Extract(traceparent string) tracecontext.TraceContext
}

// NewOtelTracer adapts an OpenTelemetry tracer to the engine's Tracer
// capability. The parent TraceContext becomes a remote span context so the
// engine's spans join the propagated trace.
func NewOtelTracer(tracer trace.Tracer) Tracer {
	if tracer == nil {
		panic("topicflow: otel tracer cannot be nil")
	}
	return &otelTracer{tracer: tracer}
}

type otelTracer struct {
	tracer trace.Tracer
}

func (t *otelTracer) StartSpan(ctx context.Context, name string, attrs map[string]any, parent tracecontext.TraceContext) (context.Context, Span) {
	if sc, ok := remoteSpanContext(parent); ok {
		ctx = trace.ContextWithRemoteSpanContext(ctx, sc)
	}

	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(toAttributes(attrs)...))
	return ctx, &otelSpan{span: span}
}

func (t *otelTracer) Inject(tc tracecontext.TraceContext) (string, string) {
	return tc.String(), ""
}

func (t *otelTracer) Extract(traceparent string) tracecontext.TraceContext {
	return tracecontext.Parse(traceparent)
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) SetStatus(code StatusCode, message string) {
	switch code {
	case StatusOK:
		s.span.SetStatus(codes.Ok, message)
	case StatusError:
		s.span.SetStatus(codes.Error, message)
	default:
		s.span.SetStatus(codes.Unset, message)
	}
}

func (s *otelSpan) AddEvent(name string, attrs map[string]any) {
	s.span.AddEvent(name, trace.WithAttributes(toAttributes(attrs)...))
}

func (s *otelSpan) End() {
	s.span.End()
}

func remoteSpanContext(tc tracecontext.TraceContext) (trace.SpanContext, bool) {
	traceID, err := trace.TraceIDFromHex(tc.TraceID)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(tc.SpanID)
	if err != nil {
		return trace.SpanContext{}, false
	}

	flags := trace.TraceFlags(0)
	if tc.Flags == "01" {
		flags = trace.FlagsSampled
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	})
	return sc, sc.IsValid()
}

func toAttributes(attrs map[string]any) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for key, value := range attrs {
		switch v := value.(type) {
		case string:
			kvs = append(kvs, attribute.String(key, v))
		case bool:
			kvs = append(kvs, attribute.Bool(key, v))
		case int:
			kvs = append(kvs, attribute.Int(key, v))
		case int64:
			kvs = append(kvs, attribute.Int64(key, v))
		case float64:
			kvs = append(kvs, attribute.Float64(key, v))
		default:
			kvs = append(kvs, attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
	return kvs
}

// NewNopTracer returns a Tracer that records nothing. Used when no tracer is
// injected so the engine's span plumbing never nil-checks.
func NewNopTracer() Tracer {
	return nopTracer{}
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string, _ map[string]any, _ tracecontext.TraceContext) (context.Context, Span) {
	return ctx, nopSpan{}
}

func (nopTracer) Inject(tc tracecontext.TraceContext) (string, string) {
	return tc.String(), ""
}

func (nopTracer) Extract(traceparent string) tracecontext.TraceContext {
	return tracecontext.Parse(traceparent)
}

type nopSpan struct{}

func (nopSpan) SetStatus(StatusCode, string)    {}
func (nopSpan) AddEvent(string, map[string]any) {}
func (nopSpan) End()                            {}
