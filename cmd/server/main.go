// Package main is the entry point for the Coral chat server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/ai"
	"github.com/jkindrix/coral/internal/audit"
	"github.com/jkindrix/coral/internal/circuitbreaker"
	"github.com/jkindrix/coral/internal/clock"
	"github.com/jkindrix/coral/internal/config"
	"github.com/jkindrix/coral/internal/conversation"
	"github.com/jkindrix/coral/internal/database"
	"github.com/jkindrix/coral/internal/domain"
	"github.com/jkindrix/coral/internal/handler"
	"github.com/jkindrix/coral/internal/logging"
	"github.com/jkindrix/coral/internal/metrics"
	"github.com/jkindrix/coral/internal/middleware"
	"github.com/jkindrix/coral/internal/ratelimit"
	"github.com/jkindrix/coral/internal/repository"
	"github.com/jkindrix/coral/internal/service"
	"github.com/jkindrix/coral/internal/shutdown"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// logLeadCapacity bounds the in-memory copy kept by the log sink.
const logLeadCapacity = 1000

func main() {
	loadDotenv()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(&logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Server.Environment,
		Service:     "coral",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// loadDotenv reads .env.local then .env. Variables already set in the
// environment win, and missing files are ignored.
func loadDotenv() {
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// backends holds the external connections opened at startup.
type backends struct {
	db    *database.DB
	redis *redis.Client
	mongo *mongo.Client
}

func (b *backends) close(ctx context.Context) error {
	var errs []error
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if b.mongo != nil {
		if err := b.mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongo: %w", err))
		}
	}
	if b.db != nil {
		b.db.Close()
	}
	return errors.Join(errs...)
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx := context.Background()
	base := logger.Zap()

	base.Info("starting Coral server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("env", cfg.Server.Environment),
		zap.String("session_store", cfg.Chat.SessionStore),
		zap.String("lead_sink", cfg.Leads.Sink),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	m := metrics.NewMetrics()
	events := metrics.NewBusinessEventLogger(base)
	auditLog := audit.NewLogger(base)
	clk := clock.New()

	res := &backends{}
	if err := res.open(ctx, cfg, base); err != nil {
		_ = res.close(ctx)
		return err
	}

	sessions, storeCheck, err := newSessionStore(cfg, res, clk)
	if err != nil {
		_ = res.close(ctx)
		return err
	}
	leads, sinkCheck, err := newLeadSink(ctx, cfg, res, base)
	if err != nil {
		_ = res.close(ctx)
		return err
	}

	// Language model behind a circuit breaker
	model, err := ai.NewChatModel(ctx, cfg, base)
	if err != nil {
		_ = res.close(ctx)
		return fmt.Errorf("language model: %w", err)
	}
	breaker := circuitbreaker.New("llm", breakerConfig(&cfg.LLM), base.Named("breaker"))
	breaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		m.SetCircuitBreakerState(name, breakerGauge(to))
		if to == circuitbreaker.StateOpen {
			m.RecordCircuitOpen(name)
		}
		events.CircuitStateChanged(context.Background(), name, from.String(), to.String())
	})
	assistant := ai.NewAssistant(model, breaker, ai.AssistantConfigFrom(&cfg.LLM), m, base)

	// Hand-off workers
	dispatcher := service.NewHandoffDispatcher(leads, m, events, base, handoffConfig(cfg))
	if err := dispatcher.Start(); err != nil {
		_ = res.close(ctx)
		return fmt.Errorf("handoff dispatcher: %w", err)
	}

	engine := conversation.NewEngine(sessions, assistant, dispatcher, conversation.Config{
		FreeformFallback:       cfg.Chat.FreeformFallback,
		SurfaceHandoffFailures: cfg.Chat.SurfaceHandoffFailures,
	}, base).WithObserver(m).WithClock(clk)

	sweeper := service.NewSessionSweeper(sessions, cfg.Chat.SessionTTL, cfg.Chat.SweepInterval, m, base)
	sweeper.Start()

	bgCtx, stopBackground := context.WithCancel(ctx)
	limiter := ratelimit.NewClientLimiter(ratelimit.ClientLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, base.Named("ratelimit"))
	go limiter.Run(bgCtx)

	adminAuth := service.NewAdminAuthService(cfg.Admin.Username, cfg.Admin.PasswordHash, base)
	go cleanupLoop(bgCtx, time.Hour, adminAuth.CleanupAttempts)
	if res.db != nil {
		go poolStatsLoop(bgCtx, 15*time.Second, res.db, m)
	}

	coord := shutdown.NewCoordinator(&shutdown.Config{Timeout: cfg.Server.ShutdownTimeout}, base)

	// HTTP surface
	chat := handler.NewChatHandler(handler.ChatHandlerConfig{
		Engine:           engine,
		Recorder:         m,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		TurnTimeout:      cfg.Chat.TurnTimeout,
		Logger:           base,
	})
	routerCfg := handler.RouterConfig{
		Chat:   chat,
		Socket: handler.NewChatSocketHandler(chat, cfg.Chat.AllowedOrigins, m, base),
		Health: handler.NewHealthHandler(handler.HealthHandlerConfig{
			SessionStore:    storeCheck,
			LeadSink:        sinkCheck,
			AIHealthChecker: assistant,
			Drain:           coord,
			Version:         version,
			Logger:          base,
		}),
		Metrics:        m,
		Events:         events,
		AuditLogger:    auditLog,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.Chat.AllowedOrigins,
		Logger:         base,
	}
	if adminAuth.Enabled() {
		routerCfg.Admin = handler.NewAdminHandler(handler.AdminHandlerConfig{
			Leads:       leads,
			AuditLogger: auditLog,
			Logger:      base,
		})
		routerCfg.LogLevel = handler.NewLogLevelHandler(logger, auditLog)
		routerCfg.AdminAuth = middleware.AdminAuth(adminAuth, auditLog, m, base)
	} else {
		base.Info("admin endpoints disabled; set ADMIN_PASSWORD_HASH to enable")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler.NewRouter(routerCfg),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// Phase order: stop taking requests, stop workers, close backends.
	coord.RegisterFunc(shutdown.PhaseDrain, "http-server", server.Shutdown)
	coord.RegisterFunc(shutdown.PhaseWorkers, "handoff-dispatcher", dispatcher.Stop)
	coord.RegisterFunc(shutdown.PhaseWorkers, "session-sweeper", sweeper.Stop)
	coord.RegisterFunc(shutdown.PhaseWorkers, "background", func(context.Context) error {
		stopBackground()
		return nil
	})
	if closer, ok := model.(interface{ Close() error }); ok {
		coord.RegisterFunc(shutdown.PhaseClose, "llm-client", func(context.Context) error {
			return closer.Close()
		})
	}
	coord.RegisterFunc(shutdown.PhaseClose, "backends", res.close)

	serverErr := make(chan error, 1)
	go func() {
		base.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	auditLog.ServiceStarted(ctx, version, assistant.Provider())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	reason := ""
	var runErr error
	select {
	case sig := <-quit:
		reason = sig.String()
		base.Info("received shutdown signal", zap.String("signal", reason))
	case err := <-serverErr:
		reason = "listener failed"
		runErr = err
	}

	auditLog.ServiceStopping(ctx, reason)
	if err := coord.Shutdown(ctx); err != nil {
		base.Error("shutdown completed with errors", zap.Error(err))
	}
	return runErr
}

// open connects to every backend the configuration selects.
func (b *backends) open(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.UsesPostgres() {
		db, err := database.New(ctx, &cfg.Database, logger.Named("database"))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		b.db = db
		if err := database.NewMigrator(db.Pool, logger).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if cfg.Chat.SessionStore == config.StoreRedis {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := b.redis.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("redis connection established", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Leads.Sink == config.SinkMongo {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return fmt.Errorf("failed to connect to mongo: %w", err)
		}
		b.mongo = client
		if err := client.Ping(connectCtx, nil); err != nil {
			return fmt.Errorf("failed to ping mongo: %w", err)
		}
		logger.Info("mongo connection established", zap.String("database", cfg.Mongo.Database))
	}
	return nil
}

// newSessionStore returns the configured session store and the checker
// used by /health and /ready.
func newSessionStore(cfg *config.Config, res *backends, clk clock.Clock) (domain.SessionRepository, handler.HealthChecker, error) {
	switch cfg.Chat.SessionStore {
	case config.StoreMemory, "":
		store := repository.NewMemorySessionStore(clk)
		return store, store, nil
	case config.StoreRedis:
		if res.redis == nil {
			return nil, nil, errors.New("redis session store selected but redis is not connected")
		}
		store := repository.NewRedisSessionStore(res.redis, cfg.Redis.KeyPrefix, cfg.Chat.SessionTTL, clk)
		return store, store, nil
	case config.StorePostgres:
		if res.db == nil {
			return nil, nil, errors.New("postgres session store selected but the database is not connected")
		}
		return repository.NewPostgresSessionStore(res.db.Pool, res.db.TxManager, clk), res.db, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Chat.SessionStore)
	}
}

// newLeadSink returns the configured lead repository. The checker is nil
// for the log sink, which has nothing to ping.
func newLeadSink(ctx context.Context, cfg *config.Config, res *backends, logger *zap.Logger) (domain.LeadRepository, handler.HealthChecker, error) {
	switch cfg.Leads.Sink {
	case config.SinkLog, "":
		return repository.NewLogLeadRepository(logger, logLeadCapacity), nil, nil
	case config.SinkPostgres:
		if res.db == nil {
			return nil, nil, errors.New("postgres lead sink selected but the database is not connected")
		}
		repo := repository.NewPostgresLeadRepository(res.db.Pool)
		return repo, repo, nil
	case config.SinkMongo:
		if res.mongo == nil {
			return nil, nil, errors.New("mongo lead sink selected but mongo is not connected")
		}
		repo := repository.NewMongoLeadRepository(res.mongo, cfg.Mongo.Database)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to create mongo indexes: %w", err)
		}
		return repo, repo, nil
	default:
		return nil, nil, fmt.Errorf("unknown lead sink %q", cfg.Leads.Sink)
	}
}

func breakerConfig(cfg *config.LLMConfig) *circuitbreaker.Config {
	out := circuitbreaker.DefaultConfig()
	if cfg.CircuitFailureThreshold > 0 {
		out.FailureThreshold = cfg.CircuitFailureThreshold
	}
	if cfg.CircuitOpenTimeout > 0 {
		out.OpenTimeout = cfg.CircuitOpenTimeout
	}
	return out
}

// breakerGauge maps a breaker state onto the gauge encoding
// 0=closed, 1=half-open, 2=open.
func breakerGauge(s circuitbreaker.State) int {
	switch s {
	case circuitbreaker.StateHalfOpen:
		return 1
	case circuitbreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func handoffConfig(cfg *config.Config) *service.HandoffDispatcherConfig {
	out := service.DefaultHandoffDispatcherConfig()
	if cfg.Handoff.Workers > 0 {
		out.Workers = cfg.Handoff.Workers
	}
	if cfg.Handoff.QueueSize > 0 {
		out.QueueSize = cfg.Handoff.QueueSize
	}
	if cfg.Leads.Sink != "" {
		out.SinkName = cfg.Leads.Sink
	}

	backoff := *ratelimit.DefaultBackoffConfig()
	if cfg.Handoff.MaxAttempts > 0 {
		backoff.MaxAttempts = cfg.Handoff.MaxAttempts
	}
	if cfg.Handoff.InitialBackoff > 0 {
		backoff.InitialDelay = cfg.Handoff.InitialBackoff
	}
	if cfg.Handoff.MaxBackoff > 0 {
		backoff.MaxDelay = cfg.Handoff.MaxBackoff
	}
	out.Backoff = &backoff
	return out
}

// cleanupLoop runs fn every interval until ctx is cancelled.
func cleanupLoop(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

func poolStatsLoop(ctx context.Context, interval time.Duration, db *database.DB, m *metrics.Metrics) {
	cleanupLoop(ctx, interval, func() {
		stat := db.Pool.Stat()
		m.UpdateDBConnections(int(stat.TotalConns()), int(stat.AcquiredConns()))
	})
}
