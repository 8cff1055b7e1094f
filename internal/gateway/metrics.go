package gateway

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks gateway-level counters using atomic operations for lock-free concurrency.
type Metrics struct {
	requests atomic.Int64
	errors   atomic.Int64
	webhooks atomic.Int64
	uploads  atomic.Int64
}

// RecordWebhook records a webhook delivered to a module.
func (m *Metrics) RecordWebhook() { m.webhooks.Add(1) }

// RecordUpload records an accepted module upload.
func (m *Metrics) RecordUpload() { m.uploads.Add(1) }

// middleware counts every request and every 5xx response.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		m.requests.Add(1)
		if ww.Status() >= http.StatusInternalServerError {
			m.errors.Add(1)
		}
	})
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests: m.requests.Load(),
		Errors:   m.errors.Load(),
		Webhooks: m.webhooks.Load(),
		Uploads:  m.uploads.Load(),
	}
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Requests int64 `json:"requests"`
	Errors   int64 `json:"errors"`
	Webhooks int64 `json:"webhooks"`
	Uploads  int64 `json:"uploads"`
}

// collector exposes the counters to Prometheus.
func (m *Metrics) collector(namespace string) prometheus.Collector {
	if namespace == "" {
		namespace = "storemods"
	}
	counter := func(name, help string, v *atomic.Int64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v.Load()) })
	}
	return collectorSet{
		counter("requests_total", "HTTP requests served.", &m.requests),
		counter("errors_total", "HTTP requests answered with a 5xx status.", &m.errors),
		counter("webhooks_total", "Webhooks delivered to modules.", &m.webhooks),
		counter("uploads_total", "Module archives accepted.", &m.uploads),
	}
}

type collectorSet []prometheus.Collector

func (s collectorSet) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range s {
		c.Describe(ch)
	}
}

func (s collectorSet) Collect(ch chan<- prometheus.Metric) {
	for _, c := range s {
		c.Collect(ch)
	}
}
