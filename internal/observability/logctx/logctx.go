// Package logctx carries the request- or event-scoped logger on a context.
package logctx

import (
	"context"

	"github.com/Zhima-Mochi/cafeshop/internal/observability"

	"go.opentelemetry.io/otel/trace"
)

type key struct{}

// With returns ctx carrying logger. A nil logger leaves ctx unchanged.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, key{}, logger)
}

// From returns the logger stored on ctx, or nil.
func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	l, _ := ctx.Value(key{}).(observability.Logger)
	return l
}

func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if l := From(ctx); l != nil {
		return l
	}
	return fallback
}

// Enrich extends the scoped logger (or fallback) with fields and stores the result on ctx.
func Enrich(ctx context.Context, fallback observability.Logger, fields ...observability.Field) (context.Context, observability.Logger) {
	l := FromOr(ctx, fallback)
	if l == nil {
		l = observability.NopLogger()
	}
	l = l.With(fields...)
	return With(ctx, l), l
}

// TraceFields returns trace_id and span_id for the span on ctx, or nothing when there is none.
func TraceFields(ctx context.Context) []observability.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []observability.Field{
		observability.F("trace_id", sc.TraceID().String()),
		observability.F("span_id", sc.SpanID().String()),
	}
}
