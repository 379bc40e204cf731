package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the memory core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Appends         *prometheus.CounterVec
	StoreErrors     *prometheus.CounterVec
	Degraded        *prometheus.CounterVec
	Clears          *prometheus.CounterVec
	AssembleLatency prometheus.Histogram
	Confidence      prometheus.Histogram
	SelectedTurns   prometheus.Histogram
	EmptyAssemblies *prometheus.CounterVec
}

// NewMetrics registers instruments on a private registry so several
// instances can coexist in one process.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Appends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appends_total",
			Help:      "Appended turns by outcome.",
		}, []string{"outcome"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store failures by store and operation.",
		}, []string{"store", "op"}),
		Degraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_assemblies_total",
			Help:      "Context assemblies served in degraded mode, by reason.",
		}, []string{"reason"}),
		Clears: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clears_total",
			Help:      "History clears by outcome.",
		}, []string{"outcome"}),
		AssembleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assemble_latency_ms",
			Help:      "Context assembly latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 3000},
		}),
		Confidence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_confidence",
			Help:      "Confidence of assembled contexts before the minimum gate.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		SelectedTurns: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selected_turns",
			Help:      "Turns included per assembled context.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		EmptyAssemblies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_assemblies_total",
			Help:      "Assemblies returning no turns, by cause.",
		}, []string{"cause"}),
	}
}

func (m *Metrics) ObserveAppend(outcome string) {
	if m == nil {
		return
	}
	m.Appends.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStoreError(store, op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(store, op).Inc()
}

func (m *Metrics) ObserveDegraded(reason string) {
	if m == nil {
		return
	}
	m.Degraded.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveClear(outcome string) {
	if m == nil {
		return
	}
	m.Clears.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAssemble(d time.Duration, confidence float64, selected int) {
	if m == nil {
		return
	}
	m.AssembleLatency.Observe(float64(d.Milliseconds()))
	m.Confidence.Observe(confidence)
	m.SelectedTurns.Observe(float64(selected))
}

func (m *Metrics) ObserveEmpty(cause string) {
	if m == nil {
		return
	}
	m.EmptyAssemblies.WithLabelValues(cause).Inc()
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
