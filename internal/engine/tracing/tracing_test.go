package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/drblury/topicflow/internal/engine/tracecontext"
)

func TestOtelTracer_StartSpanJoinsRemoteParent(t *testing.T) {
	tracer := NewOtelTracer(noop.NewTracerProvider().Tracer("test"))

	parent := tracecontext.TraceContext{
		Version: "00",
		TraceID: "0af7651916cd43dd8448eb211c80319c",
		SpanID:  "b7ad6b7169203331",
		Flags:   "01",
	}

	ctx, span := tracer.StartSpan(context.Background(), "handler.test", map[string]any{
		"event.id": "id-1",
	}, parent)
	defer span.End()

	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	assert.Equal(t, parent.TraceID, sc.TraceID().String())
	assert.True(t, sc.IsSampled())
}

func TestOtelTracer_InvalidParentStartsFresh(t *testing.T) {
	tracer := NewOtelTracer(noop.NewTracerProvider().Tracer("test"))

	_, span := tracer.StartSpan(context.Background(), "handler.test", nil, tracecontext.TraceContext{
		TraceID: "not-hex",
	})
	span.SetStatus(StatusError, "boom")
	span.AddEvent("validation.failed", map[string]any{"error": "boom"})
	span.End()
}

func TestOtelTracer_InjectExtractRoundTrip(t *testing.T) {
	tracer := NewOtelTracer(noop.NewTracerProvider().Tracer("test"))

	tc := tracecontext.New()
	traceparent, tracestate := tracer.Inject(tc)
	assert.Equal(t, tc.String(), traceparent)
	assert.Empty(t, tracestate)

	extracted := tracer.Extract(traceparent)
	assert.Equal(t, tc.TraceID, extracted.TraceID)
	assert.Equal(t, tc.SpanID, extracted.ParentID)
}

func TestNewOtelTracer_NilPanics(t *testing.T) {
	require.Panics(t, func() { NewOtelTracer(nil) })
}

func TestNopTracer(t *testing.T) {
	tracer := NewNopTracer()

	ctx, span := tracer.StartSpan(context.Background(), "x", nil, tracecontext.New())
	assert.NotNil(t, ctx)
	span.SetStatus(StatusOK, "")
	span.AddEvent("x", nil)
	span.End()

	tc := tracecontext.New()
	traceparent, _ := tracer.Inject(tc)
	assert.Equal(t, tc.String(), traceparent)
}
