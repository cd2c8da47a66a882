package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jkindrix/coral/internal/clock"
	"github.com/jkindrix/coral/internal/database"
	"github.com/jkindrix/coral/internal/domain"
)

// PostgresSessionStore implements domain.SessionRepository on chat_sessions.
type PostgresSessionStore struct {
	pool  *pgxpool.Pool
	tx    *database.TxManager
	clock clock.Clock
}

// NewPostgresSessionStore creates a new PostgresSessionStore.
func NewPostgresSessionStore(pool *pgxpool.Pool, tx *database.TxManager, c clock.Clock) *PostgresSessionStore {
	if c == nil {
		c = clock.New()
	}
	return &PostgresSessionStore{pool: pool, tx: tx, clock: c}
}

// Get retrieves a session by id.
func (r *PostgresSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + SessionColumns.Select() + ` FROM chat_sessions WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

// Create inserts an idle session. ON CONFLICT keeps the existing row, which
// is then returned.
func (r *PostgresSessionStore) Create(ctx context.Context, id string) (*domain.Session, error) {
	if err := RequireSessionID(id); err != nil {
		return nil, err
	}
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	sess := domain.NewSession(id, r.clock.NowUTC())
	query := SessionColumns.Insert() + ` ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, sess.ID, sess.State, sess.Data, sess.CreatedAt, sess.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return r.Get(ctx, id)
}

// Update locks the row, applies fn and writes the result back in one
// transaction. A missing row is created first.
func (r *PostgresSessionStore) Update(ctx context.Context, id string, fn domain.SessionMutator) (*domain.Session, error) {
	if err := RequireSessionID(id); err != nil {
		return nil, err
	}
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	var result *domain.Session
	err := r.tx.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		now := r.clock.NowUTC()
		if _, err := tx.Exec(ctx,
			SessionColumns.Insert()+` ON CONFLICT (id) DO NOTHING`,
			id, domain.StateIdle, map[domain.Field]string{}, now, now,
		); err != nil {
			return fmt.Errorf("failed to ensure session: %w", err)
		}

		working, err := scanSession(tx.QueryRow(ctx,
			`SELECT `+SessionColumns.Select()+` FROM chat_sessions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if err := fn(working); err != nil {
			return err
		}
		working.UpdatedAt = r.clock.NowUTC()

		if _, err := tx.Exec(ctx,
			`UPDATE chat_sessions SET state = $2, data = $3, updated_at = $4 WHERE id = $1`,
			working.ID, working.State, working.Data, working.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		result = working
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteIdle removes sessions not updated since before.
func (r *PostgresSessionStore) DeleteIdle(ctx context.Context, before time.Time) (int, error) {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete idle sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		sess domain.Session
		raw  []byte
	)
	err := row.Scan(&sess.ID, &sess.State, &raw, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	sess.Data = map[domain.Field]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &sess.Data); err != nil {
			return nil, fmt.Errorf("failed to decode session data: %w", err)
		}
	}
	return &sess, nil
}
