package application

import (
	"context"
	"time"

	domoutbox "github.com/Zhima-Mochi/cafeshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"
	"github.com/Zhima-Mochi/cafeshop/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	spanPrefix = "UC."
	peerOutbox = "outbox"
	// Upper bound on enqueueing one event after commit.
	publishTimeout = 300 * time.Millisecond
)

// Instruments holds the RED metrics, tracer and base logger of one service.
// Instruments are supplied via DI; nothing is registered inside methods.
type Instruments struct {
	log    observability.Logger
	tracer observability.Tracer

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstruments(tel observability.Observability, service string) Instruments {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return Instruments{
		log:          tel.Logger().With(observability.F("service", service)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

func (in Instruments) Logger() observability.Logger { return in.log }

// Run tracks a single use case execution until End.
type Run struct {
	in      Instruments
	useCase string
	span    trace.Span
	start   time.Time
	outcome string
	status  string
	fields  []observability.Field

	Log observability.Logger
}

// Begin starts the span, binds a use-case logger into ctx and starts the clock.
func (in Instruments) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	ctx, log := logctx.Enrich(ctx, in.log, observability.F("use_case", useCase))
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	return ctx, &Run{
		in:      in,
		useCase: useCase,
		span:    span,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
		Log:     log,
	}
}

func (r *Run) Span() trace.Span { return r.span }

// Fail marks the run as failed with a stable status text.
func (r *Run) Fail(status string) { r.outcome, r.status = "error", status }

// Status overrides the status text of a successful run (e.g. ALREADY_PROCESSED).
func (r *Run) Status(status string) { r.status = status }

// Annotate adds fields to the closing log line.
func (r *Run) Annotate(fields ...observability.Field) { r.fields = append(r.fields, fields...) }

// Event adds a span event.
func (r *Run) Event(name string, attrs ...attribute.KeyValue) {
	if r.span != nil {
		r.span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// End closes the span, records metrics and writes the use_case_done line.
func (r *Run) End(ctx context.Context, err error) {
	if err != nil && r.outcome != "error" {
		r.Fail(StatusText(err))
	}
	lat := time.Since(r.start).Seconds()

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.status)
		} else {
			r.span.SetStatus(codes.Ok, r.status)
		}
		r.span.End()
	}

	r.in.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.in.durHistogram.Observe(lat,
		observability.L("use_case", r.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}
	fields = append(fields, logctx.TraceFields(ctx)...)
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.Err(err))
	}
	r.Log.Info("use_case_done", fields...)
}

// External calls fn as a request to peer/endpoint and records the external RED metrics.
func (in Instruments) External(ctx context.Context, peer, endpoint string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	outcome := "success"
	switch {
	case ctx.Err() != nil:
		outcome = "canceled"
	case err != nil:
		outcome = "error"
	}
	in.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
	return err
}

// Emit enqueues e after the use case has committed. Failures are annotated on the
// run and logged, never returned. A nil pub is a no-op.
func (r *Run) Emit(ctx context.Context, pub domoutbox.Publisher, e domoutbox.Event) {
	if pub == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := r.in.External(pubCtx, peerOutbox, e.EventName(), func(ctx context.Context) error {
		return pub.Publish(ctx, e)
	})
	if err != nil {
		r.Annotate(observability.F("event_publish_error", err.Error()))
		r.Log.Warn("event_publish_failed", observability.F("event", e.EventName()), observability.Err(err))
	}
}
