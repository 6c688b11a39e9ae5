package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "bookclub"

// Metrics holds the prometheus collectors of the application. All methods
// are safe to call on a nil *Metrics which makes them no-ops.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	idsAllocated    *prometheus.CounterVec
	loanRejections  *prometheus.CounterVec
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
}

// NewMetrics registers the application collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Number of http requests served by method and status code.",
		}, []string{"method", "code"}),
		idsAllocated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ids_allocated_total",
			Help:      "Number of identifiers handed out per collection.",
		}, []string{"collection"}),
		loanRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "loan_rejections_total",
			Help:      "Number of refused loan requests by reason.",
		}, []string{"reason"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_calls_total",
			Help:      "Number of calls made to upstream services by outcome.",
		}, []string{"upstream", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Duration of calls made to upstream services.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"upstream"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.idsAllocated,
		m.loanRejections,
		m.upstreamCalls,
		m.upstreamLatency,
	)
	return m
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) ObserveAllocation(collection string) {
	if m == nil {
		return
	}
	m.idsAllocated.WithLabelValues(collection).Inc()
}

func (m *Metrics) ObserveLoanRejection(reason string) {
	if m == nil {
		return
	}
	m.loanRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveUpstreamCall(upstream, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(upstream, outcome).Inc()
	m.upstreamLatency.WithLabelValues(upstream).Observe(elapsed.Seconds())
}
