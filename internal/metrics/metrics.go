// Package metrics exposes Prometheus instruments for the request dispatcher,
// the authorization service and the credential store.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for sysui
type Metrics struct {
	// Request dispatcher metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestFailures *prometheus.CounterVec

	// Authorization service metrics
	AuthOperations *prometheus.CounterVec
	ReauthPrompts  prometheus.Counter

	// Credential store metrics
	StoreOperations  *prometheus.CounterVec
	StoreCorruptions prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sysui_api_requests_total",
				Help: "Total number of API requests by method and status class",
			},
			[]string{"method", "status_class"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sysui_api_request_duration_seconds",
				Help:    "API request latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		RequestFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sysui_api_request_failures_total",
				Help: "Total number of failed API requests by classification",
			},
			[]string{"kind"},
		),
		AuthOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sysui_auth_operations_total",
				Help: "Total number of authorization operations",
			},
			[]string{"operation", "success"},
		),
		ReauthPrompts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sysui_auth_reauth_prompts_total",
				Help: "Total number of re-authentication prompts raised",
			},
		),
		StoreOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sysui_store_operations_total",
				Help: "Total number of credential store operations",
			},
			[]string{"operation", "backend"},
		),
		StoreCorruptions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sysui_store_corruptions_total",
				Help: "Total number of corrupt credentials discarded",
			},
		),
	}
}

// ObserveRequest records one dispatched request. A status of 0 means no
// response was received.
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, StatusClass(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RecordFailure counts a classified request failure.
func (m *Metrics) RecordFailure(kind string) {
	if m == nil {
		return
	}
	m.RequestFailures.WithLabelValues(kind).Inc()
}

// RecordAuth counts an authorization operation outcome.
func (m *Metrics) RecordAuth(operation string, success bool) {
	if m == nil {
		return
	}
	m.AuthOperations.WithLabelValues(operation, strconv.FormatBool(success)).Inc()
}

// RecordReauthPrompt counts a re-authentication prompt.
func (m *Metrics) RecordReauthPrompt() {
	if m == nil {
		return
	}
	m.ReauthPrompts.Inc()
}

// RecordStore counts a credential store operation.
func (m *Metrics) RecordStore(operation, backend string) {
	if m == nil {
		return
	}
	m.StoreOperations.WithLabelValues(operation, backend).Inc()
}

// RecordCorruption counts a discarded corrupt credential.
func (m *Metrics) RecordCorruption() {
	if m == nil {
		return
	}
	m.StoreCorruptions.Inc()
}

// StatusClass buckets an HTTP status into "2xx", "4xx", ... or "none".
func StatusClass(status int) string {
	if status <= 0 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}
