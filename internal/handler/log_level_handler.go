package handler

import (
	"net/http"

	"github.com/jkindrix/coral/internal/audit"
	"github.com/jkindrix/coral/internal/middleware"
)

// LevelController exposes the runtime log level over HTTP.
type LevelController interface {
	http.Handler
	GetLevel() string
}

// LogLevelHandler serves GET|PUT /admin/log-level and audits every change.
type LogLevelHandler struct {
	level       LevelController
	auditLogger *audit.Logger
}

// NewLogLevelHandler creates a handler for log level management.
func NewLogLevelHandler(level LevelController, auditLogger *audit.Logger) *LogLevelHandler {
	return &LogLevelHandler{
		level:       level,
		auditLogger: auditLogger,
	}
}

// ServeHTTP implements http.Handler for the log level endpoint.
func (h *LogLevelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	previous := h.level.GetLevel()
	h.level.ServeHTTP(w, r)

	if current := h.level.GetLevel(); current != previous && h.auditLogger != nil {
		h.auditLogger.ConfigChanged(r.Context(), "log.level", middleware.RequestInfo(r), previous, current)
	}
}
