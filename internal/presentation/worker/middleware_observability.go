package workerpresentation

import (
	"context"
	"sort"
	"time"

	domoutbox "github.com/Zhima-Mochi/cafeshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"
	"github.com/Zhima-Mochi/cafeshop/internal/observability/logctx"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// WithJobContext binds a job-scoped logger onto ctx: the job id (generated when
// empty), the trace of the span already on ctx, and every non-empty attr.
func WithJobContext(ctx context.Context, base observability.Logger, jobID string, attrs map[string]string) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}
	fields := append([]observability.Field{observability.F("job_id", jobID)}, logctx.TraceFields(ctx)...)
	keys := make([]string, 0, len(attrs))
	for k, v := range attrs {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, observability.F(k, attrs[k]))
	}
	return logctx.With(ctx, base.With(fields...))
}

// EventMiddleware opens a span per handled event, binds an event-scoped logger
// and writes one event_handled line. It matches the outbox middleware signature.
func EventMiddleware(base observability.Logger, tel observability.Observability) func(string, domoutbox.Handler) domoutbox.Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	if base == nil {
		base = tel.Logger()
	}
	return func(eventName string, h domoutbox.Handler) domoutbox.Handler {
		return func(ctx context.Context, e domoutbox.Event) (err error) {
			ctx, span := tel.Tracer().Start(ctx, "Event."+eventName, attribute.String("event", eventName))
			ctx = WithJobContext(ctx, base, "", map[string]string{
				"event":     eventName,
				"event_key": domoutbox.KeyOf(e),
			})

			start := time.Now()
			defer func() {
				outcome := "success"
				if err != nil {
					outcome = "error"
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
				span.End()
				fields := []observability.Field{
					observability.F("outcome", outcome),
					observability.F("latency_seconds", time.Since(start).Seconds()),
				}
				if err != nil {
					fields = append(fields, observability.Err(err))
				}
				logctx.FromOr(ctx, base).Info("event_handled", fields...)
			}()
			return h(ctx, e)
		}
	}
}
