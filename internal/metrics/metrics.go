// Package metrics exposes the proxy's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "magicproxy"

// Decision labels.
const (
	DecisionGranted      = "granted"
	DecisionDenied       = "denied"
	DecisionInvalidToken = "invalid_token"
	DecisionMissingToken = "missing_token"
)

// MethodOther replaces request methods outside knownMethods in labels.
const MethodOther = "other"

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

func methodLabel(method string) string {
	if knownMethods[method] {
		return method
	}
	return MethodOther
}

// Metrics is safe to use as a nil pointer, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tokensCreated            prometheus.Counter
	decisions                *prometheus.CounterVec
	upstreamDuration         *prometheus.HistogramVec
	responseCallbackFailures *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		tokensCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_created_total",
			Help:      "Magic tokens created",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Access decisions on proxied requests",
		}, []string{"decision"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Duration of forwarded upstream requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
		responseCallbackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_callback_failures_total",
			Help:      "Response callbacks that returned an error or panicked",
		}, []string{"scope"}),
	}
	reg.MustRegister(
		m.tokensCreated,
		m.decisions,
		m.upstreamDuration,
		m.responseCallbackFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) TokenCreated() {
	if m == nil {
		return
	}
	m.tokensCreated.Inc()
}

func (m *Metrics) Decision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveUpstream(method, code string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(methodLabel(method), code).Observe(seconds)
}

func (m *Metrics) ResponseCallbackFailed(scope string) {
	if m == nil {
		return
	}
	m.responseCallbackFailures.WithLabelValues(scope).Inc()
}

// Handler serves the collected metrics in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
