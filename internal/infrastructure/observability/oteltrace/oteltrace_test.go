package oteltrace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestStartKeepsParentSpanContext(t *testing.T) {
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), parent)

	ctx, span := New(noop.NewTracerProvider(), "").Start(ctx, "UC.PlaceOrder", attribute.String("use_case", "order.place"))
	defer span.End()

	assert.Equal(t, parent.TraceID(), trace.SpanContextFromContext(ctx).TraceID())
	assert.False(t, span.IsRecording())
}

func TestNewFallsBackToGlobalProvider(t *testing.T) {
	_, span := New(nil, "cafeshop").Start(context.Background(), "Job.DeliverySweep")
	defer span.End()
	assert.NotNil(t, span)
}
