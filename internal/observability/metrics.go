package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notemate"

type moduleMetrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimitedTotal    prometheus.Counter

	sessionTotal  *prometheus.CounterVec
	sessionRounds *prometheus.HistogramVec

	actionExecutionTotal    *prometheus.CounterVec
	actionExecutionDuration *prometheus.HistogramVec

	modelCallTotal    *prometheus.CounterVec
	modelCallDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			httpRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "http_requests_total",
					Help:      "Total HTTP requests by route, method and status code.",
				},
				[]string{"route", "method", "code"},
			),
			httpRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "http_request_duration_seconds",
					Help:      "HTTP request duration in seconds by route.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"route"},
			),
			rateLimitedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "http_rate_limited_total",
					Help:      "Requests rejected by the per-IP rate limiter.",
				},
			),
			sessionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "agent_sessions_total",
					Help:      "Conversation sessions by persona and outcome.",
				},
				[]string{"persona", "outcome"},
			),
			sessionRounds: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "agent_session_action_rounds",
					Help:      "Action rounds executed per session.",
					Buckets:   []float64{0, 1, 2, 3, 5, 8},
				},
				[]string{"persona"},
			),
			actionExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "action_execution_total",
					Help:      "Total action executions by action and status.",
				},
				[]string{"action", "status"},
			),
			actionExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "action_execution_duration_seconds",
					Help:      "Action execution duration in seconds by action.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"action"},
			),
			modelCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "model_call_total",
					Help:      "Total model round-trips by provider and status.",
				},
				[]string{"provider", "status"},
			),
			modelCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "model_call_duration_seconds",
					Help:      "Model round-trip duration in seconds by provider.",
					Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
				},
				[]string{"provider"},
			),
		}

		prometheus.MustRegister(
			m.httpRequestsTotal,
			m.httpRequestDuration,
			m.rateLimitedTotal,
			m.sessionTotal,
			m.sessionRounds,
			m.actionExecutionTotal,
			m.actionExecutionDuration,
			m.modelCallTotal,
			m.modelCallDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordHTTPRequest(route, method string, code int, duration time.Duration) {
	m := getMetrics()
	m.httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func RecordRateLimited() {
	getMetrics().rateLimitedTotal.Inc()
}

// RecordSession records a finished conversation session. outcome is one of
// "final", "capped" or "error".
func RecordSession(persona, outcome string, rounds int) {
	m := getMetrics()
	m.sessionTotal.WithLabelValues(persona, outcome).Inc()
	m.sessionRounds.WithLabelValues(persona).Observe(float64(rounds))
}

func RecordActionExecution(action string, duration time.Duration, success bool) {
	m := getMetrics()
	m.actionExecutionTotal.WithLabelValues(action, statusLabel(success)).Inc()
	m.actionExecutionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func RecordModelCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.modelCallTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.modelCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
