// Package prometrics backs observability.Counter and Histogram with Prometheus vectors.
package prometrics

import (
	"sync"

	"github.com/Zhima-Mochi/cafeshop/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry creates or returns the labelled vector registered under name.
type Registry interface {
	Counter(name, help string, labelKeys ...string) observability.Counter
	Histogram(name, help string, buckets []float64, labelKeys ...string) observability.Histogram
}

type registry struct {
	reg       prometheus.Registerer
	namespace string
	subsystem string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// New registers collectors on reg; a nil reg means the process-wide default registerer.
func New(reg prometheus.Registerer, namespace, subsystem string) Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &registry{
		reg:        reg,
		namespace:  namespace,
		subsystem:  subsystem,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (r *registry) Counter(name, help string, labelKeys ...string) observability.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.counters[name]
	if !ok {
		v = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help,
		}, labelKeys)
		r.reg.MustRegister(v)
		r.counters[name] = v
	}
	return counterVec{v}
}

func (r *registry) Histogram(name, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.histograms[name]
	if !ok {
		if buckets == nil {
			buckets = prometheus.DefBuckets
		}
		v = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help, Buckets: buckets,
		}, labelKeys)
		r.reg.MustRegister(v)
		r.histograms[name] = v
	}
	return histogramVec{v}
}

type counterVec struct{ v *prometheus.CounterVec }

func (c counterVec) Add(d float64, labels ...observability.Label) { c.v.With(toLabels(labels)).Add(d) }

// Bind resolves the child once so hot paths skip the label lookup.
func (c counterVec) Bind(labels ...observability.Label) observability.BoundCounter {
	return c.v.With(toLabels(labels))
}

type histogramVec struct{ v *prometheus.HistogramVec }

func (h histogramVec) Observe(x float64, labels ...observability.Label) {
	h.v.With(toLabels(labels)).Observe(x)
}

func (h histogramVec) Bind(labels ...observability.Label) observability.BoundHistogram {
	return h.v.With(toLabels(labels))
}

func toLabels(ls []observability.Label) prometheus.Labels {
	out := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		out[l.Key] = l.Value
	}
	return out
}
