package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/audit"
	"github.com/jkindrix/coral/internal/metrics"
	"github.com/jkindrix/coral/internal/middleware"
	"github.com/jkindrix/coral/internal/ratelimit"
)

// RouterConfig collects everything the HTTP router serves. Nil handlers
// leave their routes unregistered.
type RouterConfig struct {
	Chat     *ChatHandler
	Socket   *ChatSocketHandler
	Admin    *AdminHandler
	Health   *HealthHandler
	LogLevel http.Handler

	// AdminAuth guards /admin. Admin routes are not mounted without it.
	AdminAuth func(http.Handler) http.Handler

	Metrics        *metrics.Metrics
	Events         *metrics.BusinessEventLogger
	AuditLogger    *audit.Logger
	RateLimiter    *ratelimit.ClientLimiter
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter builds the chi router with the full middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(middleware.NewRequestCorrelation(logger).Middleware)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	if cfg.Events != nil {
		r.Use(WithErrorReporter(cfg.Events))
	}
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.CorrelationIDHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.CorrelationIDHeader, middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Probes and scrapes are never rate limited.
	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(r)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(middleware.RateLimit(cfg.RateLimiter, logger, rateLimitHook(cfg)))
		}

		if cfg.Socket != nil {
			cfg.Socket.RegisterRoutes(r)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.BodySizeLimiterChat())
			if cfg.Chat != nil {
				cfg.Chat.RegisterRoutes(r)
			}
		})

		if cfg.AdminAuth != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(cfg.AdminAuth)
				r.Use(middleware.BodySizeLimiter(middleware.DefaultMaxBodySize))
				if cfg.Admin != nil {
					cfg.Admin.RegisterRoutes(r)
				}
				if cfg.LogLevel != nil {
					r.Method(http.MethodGet, "/log-level", cfg.LogLevel)
					r.Method(http.MethodPut, "/log-level", cfg.LogLevel)
				}
			})
		}
	})

	return r
}

func rateLimitHook(cfg RouterConfig) middleware.RateLimitHook {
	return func(r *http.Request, ip string) {
		if cfg.Metrics != nil {
			cfg.Metrics.RecordRateLimitHit("client_ip")
		}
		if cfg.Events != nil {
			cfg.Events.RateLimitExceeded(r.Context(), "client_ip", ip)
		}
		if cfg.AuditLogger != nil {
			cfg.AuditLogger.RateLimitExceeded(r.Context(), r.URL.Path, middleware.RequestInfo(r))
		}
	}
}
