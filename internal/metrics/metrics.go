// Package metrics provides Prometheus metrics for the chat service.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome/status label values for metrics.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	WebSocketsOpen       prometheus.Gauge

	// Conversation metrics
	ChatTurnsTotal   *prometheus.CounterVec
	ChatTurnDuration *prometheus.HistogramVec
	SessionsActive   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsEvicted  prometheus.Counter

	// Language model metrics
	ModelCallsTotal     *prometheus.CounterVec
	ModelCallDuration   *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Hand-off metrics
	HandoffsTotal     *prometheus.CounterVec
	HandoffQueueDepth prometheus.Gauge

	// Admin metrics
	AuthAttemptsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec

	// Registry used for this metrics instance (nil means default registry)
	registry prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance with all collectors registered.
func NewMetrics() *Metrics {
	m := newMetricsWithRegistry(prometheus.DefaultRegisterer)
	m.registry = prometheus.DefaultGatherer
	return m
}

// NewMetricsWithRegistry creates metrics using a custom registry (for testing).
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := newMetricsWithRegistry(reg)
	m.registry = reg
	return m
}

func newMetricsWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coral_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coral_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		WebSocketsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coral_websockets_open",
				Help: "Number of open chat WebSocket connections",
			},
		),

		ChatTurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_chat_turns_total",
				Help: "Total number of answered chat turns by route",
			},
			[]string{"route"}, // "navigator", "regex", "classified", "flow", ...
		),
		ChatTurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coral_chat_turn_duration_seconds",
				Help:    "Time taken to answer a chat turn",
				Buckets: []float64{.001, .005, .025, .1, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"route"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coral_sessions_active",
				Help: "Number of sessions held by the in-memory store",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coral_sessions_minted_total",
				Help: "Total number of session ids minted by the server",
			},
		),
		SessionsEvicted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coral_sessions_evicted_total",
				Help: "Total number of idle sessions evicted",
			},
		),

		ModelCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_model_calls_total",
				Help: "Total number of language model calls by provider, kind, and status",
			},
			[]string{"provider", "kind", "status"},
		),
		ModelCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coral_model_call_duration_seconds",
				Help:    "Duration of language model calls",
				Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20},
			},
			[]string{"provider", "kind"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coral_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_circuit_breaker_trips_total",
				Help: "Total number of times the circuit breaker has tripped",
			},
			[]string{"service"},
		),

		HandoffsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_handoffs_total",
				Help: "Total number of lead and booking hand-offs by kind and status",
			},
			[]string{"kind", "status"}, // status: "queued", "rejected", "persisted", "failed"
		),
		HandoffQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coral_handoff_queue_depth",
				Help: "Number of hand-offs waiting for a worker",
			},
		),

		AuthAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_admin_auth_attempts_total",
				Help: "Total number of admin authentication attempts by outcome",
			},
			[]string{"outcome"},
		),

		DBConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coral_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coral_db_connections_in_use",
				Help: "Number of database connections currently in use",
			},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_rate_limit_hits_total",
				Help: "Total number of rate limit hits by limiter",
			},
			[]string{"limiter"},
		),
	}
}

// Handler returns the Prometheus HTTP handler for scraping metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware returns an HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack lets the WebSocket upgrade take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.written = true
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// normalizePath keeps label cardinality bounded.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/ready", "/live", "/metrics",
		"/api/chat", "/api/chat/sessions", "/api/cohereProxy", "/api/chatbotProxy",
		"/admin/leads", "/admin/bookings", "/admin/log-level", "/admin/circuit-breaker":
		return path
	}

	if strings.HasPrefix(path, "/ws/chat/") {
		return "/ws/chat/:sessionID"
	}
	return "other"
}

// ObserveTurn records an answered chat turn.
func (m *Metrics) ObserveTurn(route string, duration time.Duration) {
	m.ChatTurnsTotal.WithLabelValues(route).Inc()
	m.ChatTurnDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordModelCall records one language model call.
func (m *Metrics) RecordModelCall(provider, kind string, success bool, duration time.Duration) {
	status := outcomeFailure
	if success {
		status = outcomeSuccess
	}
	m.ModelCallsTotal.WithLabelValues(provider, kind, status).Inc()
	m.ModelCallDuration.WithLabelValues(provider, kind).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the circuit breaker state for a service.
// State: 0=closed, 1=half-open, 2=open
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordCircuitOpen records a circuit breaker trip.
func (m *Metrics) RecordCircuitOpen(service string) {
	m.CircuitBreakerTrips.WithLabelValues(service).Inc()
}

// RecordHandoff records a hand-off state change for kind ("lead" or "booking").
func (m *Metrics) RecordHandoff(kind, status string) {
	m.HandoffsTotal.WithLabelValues(kind, status).Inc()
}

// SetHandoffQueueDepth sets the number of queued hand-offs.
func (m *Metrics) SetHandoffQueueDepth(n int) {
	m.HandoffQueueDepth.Set(float64(n))
}

// RecordSessionMinted records a server-issued session id.
func (m *Metrics) RecordSessionMinted() {
	m.SessionsCreated.Inc()
}

// RecordSessionsEvicted records sessions removed by the idle sweeper.
func (m *Metrics) RecordSessionsEvicted(n int) {
	m.SessionsEvicted.Add(float64(n))
}

// SetActiveSessions sets the number of active sessions.
func (m *Metrics) SetActiveSessions(count int) {
	m.SessionsActive.Set(float64(count))
}

// RecordAuthAttempt records an admin authentication attempt.
func (m *Metrics) RecordAuthAttempt(success bool) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}
	m.AuthAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(limiter string) {
	m.RateLimitHitsTotal.WithLabelValues(limiter).Inc()
}

// WebSocketOpened and WebSocketClosed track live chat sockets.
func (m *Metrics) WebSocketOpened() { m.WebSocketsOpen.Inc() }

// WebSocketClosed decrements the open socket gauge.
func (m *Metrics) WebSocketClosed() { m.WebSocketsOpen.Dec() }

// UpdateDBConnections updates database connection metrics.
func (m *Metrics) UpdateDBConnections(open, inUse int) {
	m.DBConnectionsOpen.Set(float64(open))
	m.DBConnectionsInUse.Set(float64(inUse))
}
