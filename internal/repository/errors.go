// Package repository implements session and lead persistence over memory,
// Redis, PostgreSQL and MongoDB.
package repository

import (
	"context"
	"time"
)

// Default store timeouts.
const (
	// DefaultQueryTimeout bounds single-key reads.
	DefaultQueryTimeout = 5 * time.Second

	// DefaultListQueryTimeout bounds paginated list queries.
	DefaultListQueryTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds writes and read-modify-write updates.
	DefaultWriteTimeout = 10 * time.Second
)

// WithQueryTimeout returns a context with the default query timeout.
// A parent deadline that is already sooner is left in place.
func WithQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, DefaultQueryTimeout)
}

// WithListQueryTimeout returns a context with the default list query timeout.
func WithListQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, DefaultListQueryTimeout)
}

// WithWriteTimeout returns a context with the default write timeout.
func WithWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, DefaultWriteTimeout)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
