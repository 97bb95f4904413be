package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels recorded under auth_refresh_rotations_total.
const (
	RotationOutcomeRotated   = "rotated"
	RotationOutcomeMalformed = "malformed"
	RotationOutcomeUnknown   = "unknown"
	RotationOutcomeReused    = "reused"
	RotationOutcomeExpired   = "expired"
	RotationOutcomeInvalid   = "invalid"
	RotationOutcomeError     = "error"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the token lifecycle.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	logins          *prometheus.CounterVec
	rotations       *prometheus.CounterVec
	reuseDetected   prometheus.Counter
	recordsEvicted  prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Total login attempts by outcome",
	}, []string{"outcome"})

	rotations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_refresh_rotations_total",
		Help: "Refresh rotation attempts by outcome",
	}, []string{"outcome"})

	reuseDetected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_reuse_detected_total",
		Help: "Retired refresh tokens presented again, each one a revoked token family",
	})

	recordsEvicted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_records_evicted_total",
		Help: "Refresh records purged by the expiry sweep",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, logins, rotations, reuseDetected, recordsEvicted, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		logins:          logins,
		rotations:       rotations,
		reuseDetected:   reuseDetected,
		recordsEvicted:  recordsEvicted,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordLogin counts a login attempt.
func (m *MetricsService) RecordLogin(success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// RecordRotation counts a refresh rotation attempt by outcome.
func (m *MetricsService) RecordRotation(outcome string) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(outcome).Inc()
}

// RecordReuse counts a detected refresh token reuse.
func (m *MetricsService) RecordReuse() {
	if m == nil {
		return
	}
	m.reuseDetected.Inc()
}

// RecordEvictions counts records purged by the expiry sweep.
func (m *MetricsService) RecordEvictions(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsEvicted.Add(float64(n))
}

// TrackAuditDrops exposes the audit queue drop counter as a metric.
func (m *MetricsService) TrackAuditDrops(f func() uint64) {
	if m == nil || f == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "audit_entries_dropped_total",
		Help: "Audit entries rejected because the queue was full or stopped",
	}, func() float64 {
		return float64(f())
	}))
}
