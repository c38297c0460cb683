package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Requests          *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	Warnings          *prometheus.CounterVec
	BackendErrors     *prometheus.CounterVec
	ChunkLatency      prometheus.Histogram
	FirstChunkLatency prometheus.Histogram
	ActiveJobs        prometheus.Gauge
	QueuedJobs        prometheus.Gauge
	WSMessages        *prometheus.CounterVec
	WSWriteErrors     prometheus.Counter

	Window *LatencyWindow

	registry *prometheus.Registry
}

// NewMetrics registers instruments on a private registry so several
// services can coexist in one process.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Synthesis requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_rejections_total",
			Help:      "Requests rejected by a guardrail, by reason.",
		}, []string{"reason"}),
		Warnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Soft warnings attached to results, by code.",
		}, []string{"code"}),
		BackendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Backend errors by backend and code.",
		}, []string{"backend", "code"}),
		ChunkLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_synthesis_ms",
			Help:      "Per-chunk synthesis latency in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 800, 1500, 3000, 6000, 12000},
		}),
		FirstChunkLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_chunk_latency_ms",
			Help:      "Latency from request start to the first synthesized chunk in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 5000},
		}),
		ActiveJobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Jobs currently holding a synthesis slot.",
		}),
		QueuedJobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_jobs",
			Help:      "Jobs waiting for a synthesis slot.",
		}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "Websocket write failures.",
		}),
		Window:   NewLatencyWindow(256),
		registry: reg,
	}
}

func (m *Metrics) ObserveChunk(d time.Duration) {
	ms := float64(d.Milliseconds())
	m.ChunkLatency.Observe(ms)
	m.Window.Observe(StageChunk, ms)
}

func (m *Metrics) ObserveFirstChunk(d time.Duration) {
	ms := float64(d.Milliseconds())
	m.FirstChunkLatency.Observe(ms)
	m.Window.Observe(StageFirstChunk, ms)
}

func (m *Metrics) ObserveRequest(kind, outcome string, d time.Duration) {
	m.Requests.WithLabelValues(kind, outcome).Inc()
	m.Window.Observe(StageRequestTotal, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveWarning(code string) {
	m.Warnings.WithLabelValues(code).Inc()
	m.Window.ObserveIndicator(code)
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
