// Package oteltrace adapts an OpenTelemetry tracer to observability.Tracer.
package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/cafeshop/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts internal spans named by the caller.
type Tracer struct{ t trace.Tracer }

var _ observability.Tracer = Tracer{}

// New returns a tracer from tp, or from the global provider when tp is nil.
// Without an SDK provider installed, spans only carry propagated context.
func New(tp trace.TracerProvider, instrumentation string) Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if instrumentation == "" {
		instrumentation = "cafeshop"
	}
	return Tracer{t: tp.Tracer(instrumentation)}
}

func (t Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
}
