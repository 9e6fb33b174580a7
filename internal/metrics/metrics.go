// Package metrics exposes capture pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "keytrace"

// Metrics holds the capture pipeline collectors. All collectors live on a
// private registry so tests and embedders never collide with the global one.
type Metrics struct {
	registry *prometheus.Registry
	routes   map[string]http.Handler

	EventsBuilt    *prometheus.CounterVec
	BuildErrors    *prometheus.CounterVec
	Fallbacks      *prometheus.CounterVec
	SinkWrites     *prometheus.CounterVec
	SinkErrors     *prometheus.CounterVec
	EventsDropped  prometheus.Counter
	SessionsActive prometheus.Gauge
	BuildDuration  prometheus.Histogram
}

// New creates and registers all collectors. withRuntime adds the Go and
// process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		EventsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_built_total",
			Help:      "Key events built, by direction.",
		}, []string{"event"}),
		BuildErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_errors_total",
			Help:      "Raw events that could not be built, by reason.",
		}, []string{"reason"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Fallback values used while building events, by resolver.",
		}, []string{"resolver"}),
		SinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Events delivered to a sink.",
		}, []string{"sink"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed sink writes.",
		}, []string{"sink"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Raw events dropped because the capture queue was full.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Capture sessions currently running.",
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Time to resolve context and build one event.",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
	}

	reg.MustRegister(
		m.EventsBuilt, m.BuildErrors, m.Fallbacks, m.SinkWrites, m.SinkErrors,
		m.EventsDropped, m.SessionsActive, m.BuildDuration,
	)
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordBuilt records a built event of the given direction.
func (m *Metrics) RecordBuilt(event string, d time.Duration) {
	m.EventsBuilt.WithLabelValues(event).Inc()
	m.BuildDuration.Observe(d.Seconds())
}

// RecordBuildError records a raw event that failed to build.
func (m *Metrics) RecordBuildError(reason string) {
	m.BuildErrors.WithLabelValues(reason).Inc()
}

// RecordFallback records a fallback value used by resolver.
func (m *Metrics) RecordFallback(resolver string) {
	m.Fallbacks.WithLabelValues(resolver).Inc()
}

// RecordSinkWrite records the outcome of one sink write.
func (m *Metrics) RecordSinkWrite(sink string, err error) {
	if err != nil {
		m.SinkErrors.WithLabelValues(sink).Inc()
		return
	}
	m.SinkWrites.WithLabelValues(sink).Inc()
}

// RecordDropped adds n dropped raw events.
func (m *Metrics) RecordDropped(n uint64) {
	if n > 0 {
		m.EventsDropped.Add(float64(n))
	}
}

// SessionStarted records a session start.
func (m *Metrics) SessionStarted() { m.SessionsActive.Inc() }

// SessionEnded records a session end.
func (m *Metrics) SessionEnded() { m.SessionsActive.Dec() }

// Snapshot gathers the keytrace series into a flat map keyed by metric name
// and labels, e.g. `keytrace_events_built_total{event="DOWN"}`. Histograms
// report their sample count.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels = append(labels, lp.GetName()+`="`+lp.GetValue()+`"`)
			}
			sort.Strings(labels)
			key := mf.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}

			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[key] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
