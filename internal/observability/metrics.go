package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Turns            *prometheus.CounterVec
	CacheEvents      *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	TurnStageLatency *prometheus.HistogramVec

	turnStages *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome.",
		}, []string{"outcome"}),
		CacheEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Cache operations by operation and result.",
		}, []string{"op", "result"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status class.",
		}, []string{"route", "status"}),
		TurnStageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_latency_ms",
			Help:      "Latency of chat turn stages in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"stage"}),
		turnStages: newTurnStageWindow(256),
	}
}

// ObserveTurnStage records a stage duration in both the histogram and the rolling window.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.TurnStageLatency.WithLabelValues(stage).Observe(ms)
	m.turnStages.Observe(stage, ms)
}

func (m *Metrics) ObserveTurnIndicator(name string) {
	if m == nil {
		return
	}
	m.turnStages.ObserveIndicator(name)
}

func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCache(op, result string) {
	if m == nil {
		return
	}
	m.CacheEvents.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) ObserveHTTP(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m == nil {
		return TurnStageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.turnStages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
