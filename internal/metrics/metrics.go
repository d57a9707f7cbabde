// Package metrics exposes Prometheus counters for uploads and analyses.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "creditkit"

// Metrics holds the collectors for one registry. A nil *Metrics is valid and
// records nothing, so callers never need to check.
type Metrics struct {
	registry *prometheus.Registry

	uploads  *prometheus.CounterVec
	analyses *prometheus.CounterVec
	attempts prometheus.Histogram
	duration prometheus.Histogram
	sessions prometheus.Gauge
}

// New creates a registry with the Go and process collectors plus the
// application metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Workbook uploads by result (ok, missing, load_error, rejected, too_large).",
		}, []string{"result"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed analysis runs by outcome status.",
		}, []string{"status"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_attempts",
			Help:      "Model calls needed per analysis run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of analysis runs, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.uploads, m.analyses, m.attempts, m.duration, m.sessions,
	)
	return m
}

// Upload counts one upload with the given result label.
func (m *Metrics) Upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}

// Analysis records a finished run.
func (m *Metrics) Analysis(status string, attempts int, took time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(status).Inc()
	m.attempts.Observe(float64(attempts))
	m.duration.Observe(took.Seconds())
}

// Sessions sets the number of live sessions.
func (m *Metrics) Sessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
