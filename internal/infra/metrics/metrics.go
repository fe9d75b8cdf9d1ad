package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the audit service. All methods
// are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	AuditsTotal      *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	RegistryAttempts *prometheus.CounterVec
	RegistryCache    *prometheus.CounterVec
	AIBackendCalls   *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPInFlight prometheus.Gauge
	HTTPDuration *prometheus.HistogramVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AuditsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdaudit_audits_total",
			Help: "Audits run by kind and outcome",
		}, []string{"kind", "outcome"}), // kind: full, express, debug

		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdaudit_stage_duration_seconds",
			Help:    "Duration of audit pipeline stages",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),

		RegistryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdaudit_registry_attempts_total",
			Help: "Registry HTTP attempts by outcome",
		}, []string{"outcome"}),

		RegistryCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdaudit_registry_cache_total",
			Help: "Registry cache lookups by result",
		}, []string{"result"}),

		AIBackendCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdaudit_ai_backend_calls_total",
			Help: "Language-model backend calls by provider and outcome",
		}, []string{"provider", "outcome"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pdaudit_http_requests_total",
			Help: "API requests by method and status class",
		}, []string{"method", "status"}),

		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "pdaudit_http_requests_in_flight",
			Help: "API requests currently being served",
		}),

		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdaudit_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *Metrics) IncAudit(kind, outcome string) {
	if m != nil {
		m.AuditsTotal.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (m *Metrics) IncRegistryAttempt(outcome string) {
	if m != nil {
		m.RegistryAttempts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncRegistryCache(result string) {
	if m != nil {
		m.RegistryCache.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncAIBackend(provider, outcome string) {
	if m != nil {
		m.AIBackendCalls.WithLabelValues(provider, outcome).Inc()
	}
}

// StartRequest marks a request in flight and returns its completion hook.
func (m *Metrics) StartRequest(method string) func(status int) {
	if m == nil {
		return func(int) {}
	}
	start := time.Now()
	m.HTTPInFlight.Inc()
	return func(status int) {
		m.HTTPInFlight.Dec()
		m.HTTPRequests.WithLabelValues(method, statusClass(status)).Inc()
		m.HTTPDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
