package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the auth flows.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	authOutcomes    *prometheus.CounterVec
	riskScores      prometheus.Histogram
	rateLimited     *prometheus.CounterVec
	lockoutsTripped prometheus.Counter
	tokensRevoked   *prometheus.CounterVec
	activeRequests  prometheus.Gauge
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

	authOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_attempts_total",
		Help: "Authentication attempts by outcome",
	}, []string{"operation", "outcome"})

	riskScores := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fraud_risk_score",
		Help:    "Distribution of computed fraud risk scores",
		Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	rateLimited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"class"})

	lockoutsTripped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "account_lockouts_total",
		Help: "Lockouts tripped by repeated failures",
	})

	tokensRevoked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokens_revoked_total",
		Help: "Tokens revoked by reason",
	}, []string{"reason"})

	activeRequests := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "Requests currently being served",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, authOutcomes, riskScores, rateLimited, lockoutsTripped, tokensRevoked, activeRequests, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		authOutcomes:    authOutcomes,
		riskScores:      riskScores,
		rateLimited:     rateLimited,
		lockoutsTripped: lockoutsTripped,
		tokensRevoked:   tokensRevoked,
		activeRequests:  activeRequests,
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

// ObserveHTTPRequest records request timing and counts.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordAuthOutcome counts an authentication attempt result, e.g.
// ("login", "success") or ("login", "locked").
func (m *MetricsService) RecordAuthOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(operation, outcome).Inc()
}

// ObserveRiskScore records a computed fraud score.
func (m *MetricsService) ObserveRiskScore(score int) {
	if m == nil {
		return
	}
	m.riskScores.Observe(float64(score))
}

// RecordRateLimited counts a request rejected by the limiter.
func (m *MetricsService) RecordRateLimited(class string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(class).Inc()
}

// RecordLockout counts a tripped lockout.
func (m *MetricsService) RecordLockout() {
	if m == nil {
		return
	}
	m.lockoutsTripped.Inc()
}

// RecordTokenRevoked counts a revocation by reason.
func (m *MetricsService) RecordTokenRevoked(reason string) {
	if m == nil {
		return
	}
	m.tokensRevoked.WithLabelValues(reason).Inc()
}

// RequestStarted and RequestFinished bracket in-flight request tracking.
func (m *MetricsService) RequestStarted() {
	if m == nil {
		return
	}
	m.activeRequests.Inc()
}

func (m *MetricsService) RequestFinished() {
	if m == nil {
		return
	}
	m.activeRequests.Dec()
}
