package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for orex
type Metrics struct {
	// Access gate
	LoginAttemptsTotal     *prometheus.CounterVec
	GateDenialsTotal       *prometheus.CounterVec
	DenyListAdditionsTotal prometheus.Counter

	// Document generation
	MergesTotal          *prometheus.CounterVec
	MergeDurationSeconds prometheus.Histogram

	// Record writes
	RecordWritesTotal     *prometheus.CounterVec
	CoercionFailuresTotal *prometheus.CounterVec

	// HTTP
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	HTTPErrorsTotal            *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orex_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		GateDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orex_gate_denials_total",
				Help: "Total number of requests rejected by the access gate",
			},
			[]string{"reason"},
		),
		DenyListAdditionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orex_denylist_additions_total",
				Help: "Total number of IP addresses added to the deny-list",
			},
		),

		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orex_document_merges_total",
				Help: "Total number of document template merges",
			},
			[]string{"status"},
		),
		MergeDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orex_document_merge_duration_seconds",
				Help:    "Document template merge duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),

		RecordWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orex_record_writes_total",
				Help: "Total number of record writes by operation and status",
			},
			[]string{"op", "status"},
		),
		CoercionFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orex_coercion_failures_total",
				Help: "Total number of rejected form submissions by reason",
			},
			[]string{"reason"},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orex_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orex_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orex_http_errors_total",
				Help: "Total number of HTTP error responses",
			},
			[]string{"error_type"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.LoginAttemptsTotal,
		m.GateDenialsTotal,
		m.DenyListAdditionsTotal,
		m.MergesTotal,
		m.MergeDurationSeconds,
		m.RecordWritesTotal,
		m.CoercionFailuresTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.HTTPErrorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncLoginAttempt counts a login attempt with its outcome
func IncLoginAttempt(outcome string) {
	if m := Global(); m != nil {
		m.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncGateDenial counts a gate rejection
func IncGateDenial(reason string) {
	if m := Global(); m != nil {
		m.GateDenialsTotal.WithLabelValues(reason).Inc()
	}
}

// IncDenyListAdditions counts a new deny-list entry
func IncDenyListAdditions() {
	if m := Global(); m != nil {
		m.DenyListAdditionsTotal.Inc()
	}
}

// ObserveMerge records a finished merge
func ObserveMerge(start time.Time, err error) {
	m := Global()
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.MergesTotal.WithLabelValues(status).Inc()
	m.MergeDurationSeconds.Observe(time.Since(start).Seconds())
}

// IncRecordWrite counts an insert/update/delete
func IncRecordWrite(op string, err error) {
	m := Global()
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RecordWritesTotal.WithLabelValues(op, status).Inc()
}

// IncCoercionFailure counts a rejected form submission
func IncCoercionFailure(reason string) {
	if m := Global(); m != nil {
		m.CoercionFailuresTotal.WithLabelValues(reason).Inc()
	}
}

// IncHTTPErrors increments the HTTP error counter
func IncHTTPErrors(errorType string) {
	if m := Global(); m != nil {
		m.HTTPErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
