// Package metrics exposes Prometheus counters for generation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rowforge"

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	rowsGenerated *prometheus.CounterVec
	rowsWritten   *prometheus.CounterVec
	tables        *prometheus.CounterVec
	runs          prometheus.Counter
	writeDuration *prometheus.HistogramVec
}

// New creates a registry with the run collectors and the Go runtime collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rowsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_generated_total",
			Help:      "Rows generated, by table.",
		}, []string{"table"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows accepted by a sink, by sink.",
		}, []string{"sink"}),
		tables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tables_total",
			Help:      "Table tasks finished, by status.",
		}, []string{"status"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Generation runs completed.",
		}),
		writeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_write_seconds",
			Help:      "Duration of sink writes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"}),
	}

	m.registry.MustRegister(
		m.rowsGenerated,
		m.rowsWritten,
		m.tables,
		m.runs,
		m.writeDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RowsGenerated(table string, n int) {
	if m == nil {
		return
	}
	m.rowsGenerated.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) RowsWritten(sink string, n int) {
	if m == nil {
		return
	}
	m.rowsWritten.WithLabelValues(sink).Add(float64(n))
}

func (m *Metrics) TableFinished(status string) {
	if m == nil {
		return
	}
	m.tables.WithLabelValues(status).Inc()
}

func (m *Metrics) RunFinished() {
	if m == nil {
		return
	}
	m.runs.Inc()
}

func (m *Metrics) ObserveWrite(sink string, d time.Duration) {
	if m == nil {
		return
	}
	m.writeDuration.WithLabelValues(sink).Observe(d.Seconds())
}
