package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP edge,
// the principal cache and the credential lifecycle.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec

	validations *prometheus.CounterVec
	renewals    *prometheus.CounterVec
	issued      prometheus.Counter
	revoked     *prometheus.CounterVec
	swept       prometheus.Counter
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "principal_cache_latency_seconds",
		Help:    "Latency for principal cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "principal_cache_write_seconds",
		Help:    "Latency for principal cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "principal_cache_lookups_total",
		Help: "Principal cache lookups by result",
	}, []string{"result"})

	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credential_validations_total",
		Help: "Request gate outcomes",
	}, []string{"outcome"})

	renewals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credential_renewals_total",
		Help: "Credential renewal attempts by result",
	}, []string{"result"})

	issued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credential_issued_total",
		Help: "Credentials issued by login, registration or reactivation",
	})

	revoked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credential_revoked_total",
		Help: "Credential records revoked by reason",
	}, []string{"reason"})

	swept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credential_sweep_expired_total",
		Help: "Records flagged expired by the lapse sweep",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		validations, renewals, issued, revoked, swept, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheLookups:    cacheLookups,
		validations:     validations,
		renewals:        renewals,
		issued:          issued,
		revoked:         revoked,
		swept:           swept,
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// RecordCacheOperation records a principal cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordValidation counts a request gate outcome ("accept", "renewal_required"
// or a reject kind).
func (m *MetricsService) RecordValidation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

// RecordRenewal counts a renewal attempt ("success" or the failure kind).
func (m *MetricsService) RecordRenewal(result string) {
	if m == nil {
		return
	}
	m.renewals.WithLabelValues(result).Inc()
}

// RecordIssue counts a fresh issuance.
func (m *MetricsService) RecordIssue() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

// RecordRevocations adds n revoked records under reason.
func (m *MetricsService) RecordRevocations(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.WithLabelValues(reason).Add(float64(n))
}

// RecordSweep adds records flagged by a sweep pass.
func (m *MetricsService) RecordSweep(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}
