package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
)

const defaultNamespace = "flowgate"

// dispatch latencies run from sub-second embeddings to multi-minute streams
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

var healthStates = []domain.HealthState{domain.HealthUnknown, domain.HealthHealthy, domain.HealthUnhealthy}

var syncStatuses = []domain.ModelSyncStatus{domain.SyncPending, domain.SyncSyncing, domain.SyncAvailable, domain.SyncFailed}

// Collector implements ports.MetricsRecorder on a private prometheus
// registry so tests and embedded uses never collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	requests             *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	retries              *prometheus.CounterVec
	transformationErrors *prometheus.CounterVec
	rateLimited          *prometheus.CounterVec
	backendHealth        *prometheus.GaugeVec
	modelSync            *prometheus.GaugeVec
	affinityEntries      prometheus.Gauge
}

var _ ports.MetricsRecorder = (*Collector)(nil)

func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = defaultNamespace
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "requests_total",
			Help:      "Dispatched requests by frontend, serving backend, kind and outcome.",
		}, []string{"frontend", "backend", "kind", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "request_duration_seconds",
			Help:      "End to end dispatch latency including retries.",
			Buckets:   latencyBuckets,
		}, []string{"frontend", "kind"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "retries_total",
			Help:      "Attempts made on a further candidate after a failure.",
		}, []string{"frontend", "backend"}),
		transformationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "transformation_errors_total",
			Help:      "Failures translating between dialects.",
		}, []string{"source", "target", "stage"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"scope"}),
		backendHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "backend_health",
			Help:      "1 for the backend's current health state, 0 for the others.",
		}, []string{"backend", "state"}),
		modelSync: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "model_sync_records",
			Help:      "Required models per backend by sync status.",
		}, []string{"backend", "status"}),
		affinityEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "affinity_entries",
			Help:      "Live sticky session bindings.",
		}),
	}

	registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.retries,
		c.transformationErrors,
		c.rateLimited,
		c.backendHealth,
		c.modelSync,
		c.affinityEntries,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

func (c *Collector) RecordDispatch(frontendID, backendID string, kind domain.RequestKind, outcome string, latency time.Duration) {
	if backendID == "" {
		backendID = "none"
	}
	c.requests.WithLabelValues(frontendID, backendID, kind.String(), outcome).Inc()
	c.requestDuration.WithLabelValues(frontendID, kind.String()).Observe(latency.Seconds())
}

func (c *Collector) RecordRetry(frontendID, backendID string) {
	c.retries.WithLabelValues(frontendID, backendID).Inc()
}

func (c *Collector) RecordTransformationError(source, target domain.Dialect, stage string) {
	c.transformationErrors.WithLabelValues(source.String(), target.String(), stage).Inc()
}

func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

func (c *Collector) SetBackendHealth(backendID string, state domain.HealthState) {
	for _, s := range healthStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.backendHealth.WithLabelValues(backendID, s.String()).Set(v)
	}
}

func (c *Collector) SetAffinityEntries(n int) {
	c.affinityEntries.Set(float64(n))
}

func (c *Collector) SetModelSyncStatus(backendID string, counts map[domain.ModelSyncStatus]int) {
	for _, s := range syncStatuses {
		c.modelSync.WithLabelValues(backendID, s.String()).Set(float64(counts[s]))
	}
}

// ForgetBackend drops every series labelled with the backend so deleted
// backends stop showing up in scrapes.
func (c *Collector) ForgetBackend(backendID string) {
	labels := prometheus.Labels{"backend": backendID}
	c.backendHealth.DeletePartialMatch(labels)
	c.modelSync.DeletePartialMatch(labels)
	c.requests.DeletePartialMatch(labels)
	c.retries.DeletePartialMatch(labels)
}
