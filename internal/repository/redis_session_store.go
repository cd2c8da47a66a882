package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jkindrix/coral/internal/clock"
	"github.com/jkindrix/coral/internal/domain"
)

const (
	defaultSessionPrefix = "coral:session:"
	maxUpdateRetries     = 5
)

// RedisSessionStore implements domain.SessionRepository with one JSON value
// per session. Expiry is delegated to the key TTL, refreshed on every write.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	clock  clock.Clock
}

// NewRedisSessionStore creates a store. A zero ttl keeps sessions forever.
func NewRedisSessionStore(client *redis.Client, prefix string, ttl time.Duration, c clock.Clock) *RedisSessionStore {
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	if c == nil {
		c = clock.New()
	}
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl, clock: c}
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + id
}

// Get returns the session or domain.ErrSessionNotFound.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	return decodeSession(data)
}

// Create stores a fresh idle session unless one already exists.
func (s *RedisSessionStore) Create(ctx context.Context, id string) (*domain.Session, error) {
	if err := RequireSessionID(id); err != nil {
		return nil, err
	}
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	sess := domain.NewSession(id, s.clock.NowUTC())
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.key(id), data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis create session: %w", err)
	}
	if created {
		return sess, nil
	}
	// lost the race; the other writer's session wins
	return s.Get(ctx, id)
}

// Update runs fn inside an optimistic WATCH/MULTI transaction, retrying when
// another writer touched the key in between.
func (s *RedisSessionStore) Update(ctx context.Context, id string, fn domain.SessionMutator) (*domain.Session, error) {
	if err := RequireSessionID(id); err != nil {
		return nil, err
	}
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	key := s.key(id)
	var result *domain.Session

	txf := func(tx *redis.Tx) error {
		var working *domain.Session
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			working = domain.NewSession(id, s.clock.NowUTC())
		case err != nil:
			return err
		default:
			if working, err = decodeSession(data); err != nil {
				return err
			}
		}

		if err := fn(working); err != nil {
			return err
		}
		working.UpdatedAt = s.clock.NowUTC()

		encoded, err := json.Marshal(working)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		if err == nil {
			result = working
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("redis update session %s: too much contention", id)
}

// DeleteIdle is a no-op; Redis expires idle sessions through the key TTL.
func (s *RedisSessionStore) DeleteIdle(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Ping checks connectivity.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeSession(data []byte) (*domain.Session, error) {
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Data == nil {
		sess.Data = map[domain.Field]string{}
	}
	if !sess.State.Valid() {
		sess.State = domain.StateIdle
	}
	return &sess, nil
}
