package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upb/maternal-assistant/services/providers"
)

// Metrics holds the Prometheus collectors of the service.
//
// Metrics:
//   - <ns>_http_requests_total: HTTP requests by method, route and status
//   - <ns>_http_request_duration_seconds: HTTP latency by method and route
//   - <ns>_operations_total: assistant operations by operation and status
//   - <ns>_provider_attempts_total: provider attempts by provider and outcome
//   - <ns>_provider_latency_seconds: provider attempt latency
//   - <ns>_provider_skips_total: providers skipped by reason
//   - <ns>_provider_tokens_total: tokens reported by providers
//   - <ns>_dispatch_exhausted_total: requests where every provider failed
//   - <ns>_history_dropped_total: interaction records dropped under load
//
// All methods are safe on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	operations     *prometheus.CounterVec
	attempts       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	skips          *prometheus.CounterVec
	tokens         *prometheus.CounterVec
	exhausted      prometheus.Counter
	historyDropped prometheus.Counter
}

// NewMetrics creates and registers the collectors on a private registry
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "route"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of assistant operations by result",
			},
			[]string{"operation", "status"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Total number of provider attempts by outcome",
			},
			[]string{"provider", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_latency_seconds",
				Help:      "Provider attempt latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
			},
			[]string{"provider"},
		),
		skips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_skips_total",
				Help:      "Total number of providers skipped during dispatch",
			},
			[]string{"provider", "reason"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_tokens_total",
				Help:      "Total number of tokens reported by providers",
			},
			[]string{"provider", "kind"},
		),
		exhausted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_exhausted_total",
				Help:      "Total number of requests where every provider failed",
			},
		),
		historyDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_dropped_total",
				Help:      "Total number of interaction records dropped because the queue was full",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.operations,
		m.attempts,
		m.latency,
		m.skips,
		m.tokens,
		m.exhausted,
		m.historyDropped,
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RecordHTTPRequest records one served request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordOperation records the result of an assistant operation
func (m *Metrics) RecordOperation(operation, status string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, status).Inc()
}

// RecordHistoryDropped counts an interaction record that could not be queued
func (m *Metrics) RecordHistoryDropped() {
	if m == nil {
		return
	}
	m.historyDropped.Inc()
}

// ObserveAttempt records one provider attempt
func (m *Metrics) ObserveAttempt(provider string, outcome providers.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(provider, outcome.Kind.String()).Inc()
	m.latency.WithLabelValues(provider).Observe(elapsed.Seconds())

	if outcome.OK() && outcome.Result != nil && outcome.Result.Usage != nil {
		u := outcome.Result.Usage
		m.tokens.WithLabelValues(provider, "prompt").Add(float64(u.PromptTokens))
		m.tokens.WithLabelValues(provider, "completion").Add(float64(u.CompletionTokens))
	}
}

// ObserveSkip records a provider skipped without an attempt
func (m *Metrics) ObserveSkip(provider, reason string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(provider, reason).Inc()
}

// ObserveExhausted records a dispatch where every provider failed
func (m *Metrics) ObserveExhausted() {
	if m == nil {
		return
	}
	m.exhausted.Inc()
}
