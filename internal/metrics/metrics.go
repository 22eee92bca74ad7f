// Package metrics exposes Prometheus collectors for moderation and HTTP
// traffic. Every method is safe to call on a nil receiver.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flames"

const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeDenied   = "denied"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

type Moderation struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	notifications *prometheus.CounterVec
}

// NewModeration registers the moderation collectors with reg. A nil reg
// yields working but unregistered collectors.
func NewModeration(reg prometheus.Registerer) *Moderation {
	factory := promauto.With(reg)
	return &Moderation{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_operations_total",
			Help:      "Moderation operations by kind, operation and outcome",
		}, []string{"kind", "operation", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "moderation_operation_duration_seconds",
			Help:      "Latency of moderation operations including the store transaction",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Transactional emails by template and outcome",
		}, []string{"template", "outcome"}),
	}
}

func (m *Moderation) Observe(kind, operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(kind, operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(took.Seconds())
}

func (m *Moderation) Notified(template string, ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeError
	}
	m.notifications.WithLabelValues(template, outcome).Inc()
}

// OperationCount reads a counter value back. Used by tests and the health
// summary.
func (m *Moderation) OperationCount(kind, operation, outcome string) float64 {
	if m == nil {
		return 0
	}
	return readCounter(m.operations.WithLabelValues(kind, operation, outcome))
}

type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	factory := promauto.With(reg)
	return &HTTP{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (h *HTTP) Observe(method, route string, status int, took time.Duration) {
	if h == nil {
		return
	}
	h.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	h.duration.WithLabelValues(route).Observe(took.Seconds())
}
