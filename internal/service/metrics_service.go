package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth operation results used as metric label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// MetricsService encapsulates Prometheus instrumentation for the auth service.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	loginTotal      *prometheus.CounterVec
	refreshTotal    *prometheus.CounterVec
	logoutTotal     *prometheus.CounterVec
	replayDetected  prometheus.Counter
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

	loginTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	refreshTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_refreshes_total",
		Help: "Refresh-token rotations by result",
	}, []string{"result"})

	logoutTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logouts_total",
		Help: "Logouts by scope (device or all)",
	}, []string{"scope"})

	replayDetected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_replays_detected_total",
		Help: "Refresh tokens presented after rotation or revocation",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, loginTotal, refreshTotal, logoutTotal, replayDetected, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		loginTotal:      loginTotal,
		refreshTotal:    refreshTotal,
		logoutTotal:     logoutTotal,
		replayDetected:  replayDetected,
	}
}

// Handler exposes the /metrics endpoint handler.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// CountLogin records a login attempt outcome.
func (m *MetricsService) CountLogin(result string) {
	if m == nil {
		return
	}
	m.loginTotal.WithLabelValues(result).Inc()
}

// CountRefresh records a rotation outcome.
func (m *MetricsService) CountRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(result).Inc()
}

// CountLogout records a logout by scope ("device" or "all").
func (m *MetricsService) CountLogout(scope string) {
	if m == nil {
		return
	}
	m.logoutTotal.WithLabelValues(scope).Inc()
}

// CountReplay records a detected refresh-token replay.
func (m *MetricsService) CountReplay() {
	if m == nil {
		return
	}
	m.replayDetected.Inc()
}
