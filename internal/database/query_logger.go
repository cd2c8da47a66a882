package database

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// QueryLoggerConfig configures query tracing.
type QueryLoggerConfig struct {
	// SlowQueryThreshold logs queries at WARN when exceeded.
	SlowQueryThreshold time.Duration
	// LogAllQueries logs every query at DEBUG.
	LogAllQueries bool
}

// DefaultQueryLoggerConfig returns the defaults used in production.
func DefaultQueryLoggerConfig() *QueryLoggerConfig {
	return &QueryLoggerConfig{
		SlowQueryThreshold: 100 * time.Millisecond,
	}
}

// QueryLogger implements pgx.QueryTracer. Session reads and writes sit on
// the chat hot path, so slow statements are surfaced in the logs.
type QueryLogger struct {
	config *QueryLoggerConfig
	logger *zap.Logger

	total  atomic.Int64
	slow   atomic.Int64
	failed atomic.Int64
}

// NewQueryLogger creates a new query logger.
func NewQueryLogger(cfg *QueryLoggerConfig, logger *zap.Logger) *QueryLogger {
	if cfg == nil {
		cfg = DefaultQueryLoggerConfig()
	}
	return &QueryLogger{
		config: cfg,
		logger: logger.Named("query"),
	}
}

type traceKey struct{}

type traceData struct {
	start time.Time
	sql   string
}

// TraceQueryStart implements pgx.QueryTracer.
func (ql *QueryLogger) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceData{start: time.Now(), sql: data.SQL})
}

// TraceQueryEnd implements pgx.QueryTracer.
func (ql *QueryLogger) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	td, ok := ctx.Value(traceKey{}).(traceData)
	if !ok {
		return
	}
	ql.record(td.sql, time.Since(td.start), data.CommandTag.String(), data.Err)
}

func (ql *QueryLogger) record(sql string, duration time.Duration, tag string, err error) {
	ql.total.Add(1)

	switch {
	case err != nil:
		ql.failed.Add(1)
		ql.logger.Error("query failed",
			zap.String("sql", truncateSQL(sql, 500)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	case duration >= ql.config.SlowQueryThreshold:
		ql.slow.Add(1)
		ql.logger.Warn("slow query",
			zap.String("sql", truncateSQL(sql, 500)),
			zap.Duration("duration", duration),
			zap.String("command_tag", tag),
		)
	case ql.config.LogAllQueries:
		ql.logger.Debug("query executed",
			zap.String("sql", truncateSQL(sql, 200)),
			zap.Duration("duration", duration),
		)
	}
}

// Counts returns total, slow and failed query counts.
func (ql *QueryLogger) Counts() (total, slow, failed int64) {
	return ql.total.Load(), ql.slow.Load(), ql.failed.Load()
}

// LogStats logs the counters, typically at shutdown.
func (ql *QueryLogger) LogStats() {
	total, slow, failed := ql.Counts()
	ql.logger.Info("query statistics",
		zap.Int64("total_queries", total),
		zap.Int64("slow_queries", slow),
		zap.Int64("failed_queries", failed),
	)
}

func truncateSQL(sql string, maxLen int) string {
	if len(sql) <= maxLen {
		return sql
	}
	return sql[:maxLen-3] + "..."
}
