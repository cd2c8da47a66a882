package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	if m.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal not initialized")
	}
	if m.ChatTurnsTotal == nil {
		t.Error("ChatTurnsTotal not initialized")
	}
	if m.ModelCallsTotal == nil {
		t.Error("ModelCallsTotal not initialized")
	}
}

func TestMetrics_RecordAuthAttempt(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordAuthAttempt(true)
	m.RecordAuthAttempt(true)
	m.RecordAuthAttempt(false)

	successCount := testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("success"))
	failureCount := testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("failure"))

	if successCount != 2 {
		t.Errorf("success count = %f, expected 2", successCount)
	}
	if failureCount != 1 {
		t.Errorf("failure count = %f, expected 1", failureCount)
	}
}

func TestMetrics_ObserveTurn(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.ObserveTurn("regex", 2*time.Millisecond)
	m.ObserveTurn("regex", 3*time.Millisecond)
	m.ObserveTurn("flow", time.Millisecond)

	if got := testutil.ToFloat64(m.ChatTurnsTotal.WithLabelValues("regex")); got != 2 {
		t.Errorf("regex turns = %f, expected 2", got)
	}
	if got := testutil.ToFloat64(m.ChatTurnsTotal.WithLabelValues("flow")); got != 1 {
		t.Errorf("flow turns = %f, expected 1", got)
	}
}

func TestMetrics_RecordModelCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordModelCall("cohere", "classify", true, 300*time.Millisecond)
	m.RecordModelCall("cohere", "complete", false, time.Second)

	if got := testutil.ToFloat64(m.ModelCallsTotal.WithLabelValues("cohere", "classify", "success")); got != 1 {
		t.Errorf("classify success = %f", got)
	}
	if got := testutil.ToFloat64(m.ModelCallsTotal.WithLabelValues("cohere", "complete", "failure")); got != 1 {
		t.Errorf("complete failure = %f", got)
	}
}

func TestMetrics_CircuitBreaker(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.SetCircuitBreakerState("llm-cohere", 2)
	m.RecordCircuitOpen("llm-cohere")

	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("llm-cohere")); got != 2 {
		t.Errorf("state = %f, expected 2", got)
	}
	if got := testutil.ToFloat64(m.CircuitBreakerTrips.WithLabelValues("llm-cohere")); got != 1 {
		t.Errorf("trips = %f, expected 1", got)
	}
}

func TestMetrics_Handoffs(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordHandoff("lead", "queued")
	m.RecordHandoff("lead", "persisted")
	m.RecordHandoff("booking", "failed")
	m.SetHandoffQueueDepth(3)

	if got := testutil.ToFloat64(m.HandoffsTotal.WithLabelValues("lead", "persisted")); got != 1 {
		t.Errorf("persisted leads = %f", got)
	}
	if got := testutil.ToFloat64(m.HandoffsTotal.WithLabelValues("booking", "failed")); got != 1 {
		t.Errorf("failed bookings = %f", got)
	}
	if got := testutil.ToFloat64(m.HandoffQueueDepth); got != 3 {
		t.Errorf("queue depth = %f", got)
	}
}

func TestMetrics_SessionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordSessionMinted()
	m.RecordSessionMinted()
	m.RecordSessionsEvicted(5)
	m.SetActiveSessions(7)

	if got := testutil.ToFloat64(m.SessionsCreated); got != 2 {
		t.Errorf("minted = %f, expected 2", got)
	}
	if got := testutil.ToFloat64(m.SessionsEvicted); got != 5 {
		t.Errorf("evicted = %f, expected 5", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 7 {
		t.Errorf("active = %f, expected 7", got)
	}
}

func TestMetrics_WebSockets(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.WebSocketOpened()
	m.WebSocketOpened()
	m.WebSocketClosed()

	if got := testutil.ToFloat64(m.WebSocketsOpen); got != 1 {
		t.Errorf("open sockets = %f, expected 1", got)
	}
}

func TestMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/chat", "400"))
	if count != 1 {
		t.Errorf("request count = %f, expected 1", count)
	}
}

func TestMetrics_Middleware_InFlight(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	inFlightDuringHandler := float64(-1)
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlightDuringHandler = testutil.ToFloat64(m.HTTPRequestsInFlight)
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if inFlightDuringHandler != 1 {
		t.Errorf("in-flight during handler = %f, expected 1", inFlightDuringHandler)
	}
	if after := testutil.ToFloat64(m.HTTPRequestsInFlight); after != 0 {
		t.Errorf("in-flight after = %f, expected 0", after)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/", "/"},
		{"/api/chat", "/api/chat"},
		{"/api/cohereProxy", "/api/cohereProxy"},
		{"/api/chat/sessions", "/api/chat/sessions"},
		{"/admin/leads", "/admin/leads"},
		{"/health", "/health"},
		{"/ws/chat/3f2a", "/ws/chat/:sessionID"},
		{"/wp-login.php", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizePath(tt.input); got != tt.expected {
				t.Errorf("normalizePath(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("WriteHeader", func(t *testing.T) {
		w := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		rw.WriteHeader(http.StatusNotFound)
		rw.WriteHeader(http.StatusOK)
		if rw.statusCode != http.StatusNotFound {
			t.Errorf("statusCode = %d, expected %d", rw.statusCode, http.StatusNotFound)
		}
	})

	t.Run("HijackUnsupported", func(t *testing.T) {
		rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
		if _, _, err := rw.Hijack(); err == nil {
			t.Error("recorder cannot be hijacked")
		}
	})
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)
	m.ObserveTurn("fallback", time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, expected %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "coral_chat_turns_total") {
		t.Error("scrape output missing chat turn counter")
	}
}
