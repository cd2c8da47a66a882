package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/circuitbreaker"
)

// HealthChecker is a dependency that can be pinged.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// AIHealthChecker reports the language model's circuit state.
type AIHealthChecker interface {
	IsCircuitOpen() bool
	CircuitBreakerStats() circuitbreaker.Stats
}

// DrainState reports whether the process is shutting down.
type DrainState interface {
	Draining() bool
}

// HealthHandler handles health check HTTP requests.
type HealthHandler struct {
	sessionStore    HealthChecker
	leadSink        HealthChecker
	aiHealthChecker AIHealthChecker
	drain           DrainState
	version         string
	logger          *zap.Logger
}

// HealthHandlerConfig holds configuration for HealthHandler. Nil checkers
// are skipped.
type HealthHandlerConfig struct {
	SessionStore    HealthChecker
	LeadSink        HealthChecker
	AIHealthChecker AIHealthChecker
	Drain           DrainState
	Version         string
	Logger          *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with all required dependencies.
func NewHealthHandler(cfg HealthHandlerConfig) *HealthHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &HealthHandler{
		sessionStore:    cfg.SessionStore,
		leadSink:        cfg.LeadSink,
		aiHealthChecker: cfg.AIHealthChecker,
		drain:           cfg.Drain,
		version:         cfg.Version,
		logger:          cfg.Logger,
	}
}

// RegisterRoutes registers health routes on the router.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReadiness)
	r.Get("/live", h.HandleLiveness)
}

// Health statuses.
const (
	StatusOK        = "ok"
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string                     `json:"status"`
	Version string                     `json:"version,omitempty"`
	Checks  map[string]ComponentHealth `json:"checks,omitempty"`
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status  string                `json:"status"`
	Message string                `json:"message,omitempty"`
	Breaker *circuitbreaker.Stats `json:"breaker,omitempty"`
}

// HandleHealth reports every dependency. The session store is critical;
// a failing lead sink or an open model circuit only degrade the service,
// since turns still get answered.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:  StatusOK,
		Version: h.version,
		Checks:  make(map[string]ComponentHealth),
	}

	critical, degraded := false, false

	if h.sessionStore != nil {
		c := h.ping(ctx, "session_store", h.sessionStore)
		critical = c.Status != StatusHealthy
		response.Checks["session_store"] = c
	}

	if h.leadSink != nil {
		c := h.ping(ctx, "lead_sink", h.leadSink)
		if c.Status != StatusHealthy {
			c.Status = StatusDegraded
			degraded = true
		}
		response.Checks["lead_sink"] = c
	}

	if h.aiHealthChecker != nil {
		stats := h.aiHealthChecker.CircuitBreakerStats()
		c := ComponentHealth{Status: StatusHealthy, Breaker: &stats}
		if h.aiHealthChecker.IsCircuitOpen() {
			degraded = true
			c.Status = StatusDegraded
			c.Message = "circuit breaker open"
		}
		response.Checks["language_model"] = c
	}

	statusCode := http.StatusOK
	switch {
	case critical:
		response.Status = StatusUnhealthy
		statusCode = http.StatusServiceUnavailable
	case degraded:
		response.Status = StatusDegraded
	}

	JSONWithRequest(w, r, statusCode, response)
}

func (h *HealthHandler) ping(ctx context.Context, name string, c HealthChecker) ComponentHealth {
	if err := c.Ping(ctx); err != nil {
		h.logger.Error("health check failed", zap.String("component", name), zap.Error(err))
		return ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
	}
	return ComponentHealth{Status: StatusHealthy}
}

// HandleReadiness returns a simple readiness probe response. Only the
// session store and the shutdown state gate readiness.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.drain != nil && h.drain.Draining() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.sessionStore != nil {
		if err := h.sessionStore.Ping(ctx); err != nil {
			h.logger.Error("readiness check failed", zap.Error(err))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// HandleLiveness returns a simple liveness probe response.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
