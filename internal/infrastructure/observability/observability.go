// Package observability assembles the Observability provider from the zap,
// Prometheus and OpenTelemetry adapters.
package observability

import (
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"
)

type instrumentKind int

const (
	kindCounter instrumentKind = iota
	kindHistogram
)

type instrument struct {
	key     observability.MetricKey
	kind    instrumentKind
	help    string
	labels  []string
	buckets []float64
}

// catalog is every instrument the service records. Keys missing here resolve to no-ops.
var catalog = []instrument{
	{observability.MUsecaseRequests, kindCounter, "Use case invocations by outcome.", []string{"use_case", "outcome"}, nil},
	{observability.MUsecaseDuration, kindHistogram, "Use case execution time in seconds.", []string{"use_case"}, nil},
	{observability.MHTTPRequests, kindCounter, "HTTP requests served.", []string{"method", "route", "status"}, nil},
	{observability.MHTTPRequestDuration, kindHistogram, "HTTP request latency in seconds.", []string{"method", "route", "status"}, nil},
	{observability.MExternalRequests, kindCounter, "Calls to external peers such as the payment gateway.", []string{"peer", "endpoint", "outcome"}, nil},
	{observability.MExternalRequestDuration, kindHistogram, "External call latency in seconds.", []string{"peer", "endpoint"}, nil},
	{observability.MStockReservations, kindCounter, "Stock reservation attempts by strategy and outcome.", []string{"strategy", "outcome"}, nil},
	{observability.MLockWait, kindHistogram, "Time spent waiting for item locks in seconds.", []string{"outcome"},
		[]float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10}},
	{observability.MEventsHandled, kindCounter, "Domain event handler executions by event and outcome.", []string{"event", "outcome"}, nil},
	{observability.MEventHandlerDuration, kindHistogram, "Domain event handler time in seconds.", []string{"event"}, nil},
}

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

func (p provider) Tracer() observability.Tracer   { return p.tracer }
func (p provider) Logger() observability.Logger   { return p.logger }
func (p provider) Metrics() observability.Metrics { return p.metrics }

type instruments struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (m instruments) Counter(key observability.MetricKey) observability.Counter {
	if c, ok := m.counters[key]; ok {
		return c
	}
	return observability.NopCounter()
}

func (m instruments) Histogram(key observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[key]; ok {
		return h
	}
	return observability.NopHistogram()
}

// New registers the catalog on reg and returns the provider. Nil parts fall back to no-ops;
// a nil reg disables metrics.
func New(tracer observability.Tracer, logger observability.Logger, reg prometrics.Registry) observability.Observability {
	p := provider{tracer: tracer, logger: logger, metrics: observability.NopMetrics()}
	if p.tracer == nil {
		p.tracer = observability.NopTracer()
	}
	if p.logger == nil {
		p.logger = observability.NopLogger()
	}
	if reg == nil {
		return p
	}

	m := instruments{
		counters:   make(map[observability.MetricKey]observability.Counter),
		histograms: make(map[observability.MetricKey]observability.Histogram),
	}
	for _, in := range catalog {
		switch in.kind {
		case kindCounter:
			m.counters[in.key] = reg.Counter(string(in.key), in.help, in.labels...)
		case kindHistogram:
			m.histograms[in.key] = reg.Histogram(string(in.key), in.help, in.buckets, in.labels...)
		}
	}
	p.metrics = m
	return p
}
