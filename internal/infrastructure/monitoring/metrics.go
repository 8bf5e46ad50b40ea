// Package monitoring provides Prometheus metrics for the tracer service:
// HTTP query-surface metrics, span store lifecycle counts, and WebSocket
// connection gauges. Expose via the standard /metrics endpoint:
//
//	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Span store metrics
	SpansRecordedTotal prometheus.Counter
	SpansEvictedTotal  prometheus.Counter
	SpansStored        prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector registered on a private registry
// hidden behind reg; pass nil to use the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fnscope_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fnscope_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		SpansRecordedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fnscope_spans_recorded_total",
				Help: "Total number of spans finalized into the store",
			},
		),
		SpansEvictedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fnscope_spans_evicted_total",
				Help: "Total number of spans dropped by eviction",
			},
		),
		SpansStored: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fnscope_spans_stored",
				Help: "Current number of spans in the store",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fnscope_ws_connections",
				Help: "Current number of WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fnscope_ws_messages_total",
				Help: "Total number of WebSocket messages by action",
			},
			[]string{"action"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fnscope_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// SpanRecorded implements store.Recorder.
func (m *Metrics) SpanRecorded() {
	m.SpansRecordedTotal.Inc()
}

// SpansEvicted implements store.Recorder.
func (m *Metrics) SpansEvicted(count int) {
	m.SpansEvictedTotal.Add(float64(count))
}

// StoreSize implements store.Recorder.
func (m *Metrics) StoreSize(size int) {
	m.SpansStored.Set(float64(size))
}
