package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/jkindrix/coral/internal/clock"
	"github.com/jkindrix/coral/internal/domain"
)

var redisTestNow = time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)

func newRedisTestStore(t *testing.T, ttl time.Duration) (*RedisSessionStore, *miniredis.Miniredis, *clock.Mock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := clock.NewMock(redisTestNow)
	return NewRedisSessionStore(client, "", ttl, clk), mr, clk
}

func TestRedisSessionStore_GetUnknown(t *testing.T) {
	store, _, _ := newRedisTestStore(t, time.Hour)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRedisSessionStore_CreateIsIdempotent(t *testing.T) {
	store, mr, _ := newRedisTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx, "s1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.State != domain.StateIdle || !sess.CreatedAt.Equal(redisTestNow) {
		t.Errorf("new session = %+v", sess)
	}
	if !mr.Exists(defaultSessionPrefix + "s1") {
		t.Fatal("expected the session under the default prefix")
	}

	if _, err := store.Update(ctx, "s1", func(s *domain.Session) error {
		s.State = domain.StateLeadName
		return nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	again, err := store.Create(ctx, "s1")
	if err != nil {
		t.Fatalf("second Create() error = %v", err)
	}
	if again.State != domain.StateLeadName {
		t.Errorf("second Create overwrote the session, state = %s", again.State)
	}
}

func TestRedisSessionStore_RejectsEmptyID(t *testing.T) {
	store, _, _ := newRedisTestStore(t, time.Hour)

	if _, err := store.Create(context.Background(), ""); err == nil {
		t.Error("Create: expected error for empty id")
	}
	if _, err := store.Update(context.Background(), "", func(*domain.Session) error { return nil }); err == nil {
		t.Error("Update: expected error for empty id")
	}
}

func TestRedisSessionStore_UpdateUnknownStartsIdle(t *testing.T) {
	store, _, clk := newRedisTestStore(t, time.Hour)
	clk.Advance(time.Minute)

	var seen domain.State
	sess, err := store.Update(context.Background(), "fresh", func(s *domain.Session) error {
		seen = s.State
		s.Data[domain.FieldName] = "Ada"
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if seen != domain.StateIdle {
		t.Errorf("mutator saw state %s, want idle", seen)
	}

	got, err := store.Get(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Data[domain.FieldName] != "Ada" || !got.UpdatedAt.Equal(sess.UpdatedAt) {
		t.Errorf("stored session = %+v", got)
	}
	if !got.UpdatedAt.Equal(redisTestNow.Add(time.Minute)) {
		t.Errorf("UpdatedAt = %v", got.UpdatedAt)
	}
}

func TestRedisSessionStore_MutatorErrorLeavesSession(t *testing.T) {
	store, _, _ := newRedisTestStore(t, time.Hour)
	ctx := context.Background()
	store.Create(ctx, "s1")

	boom := errors.New("boom")
	_, err := store.Update(ctx, "s1", func(s *domain.Session) error {
		s.State = domain.StateLeadBudget
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}

	got, _ := store.Get(ctx, "s1")
	if got.State != domain.StateIdle {
		t.Errorf("state = %s, failed mutation must not persist", got.State)
	}
}

func TestRedisSessionStore_WritesRefreshTTL(t *testing.T) {
	store, mr, _ := newRedisTestStore(t, time.Hour)
	ctx := context.Background()
	key := defaultSessionPrefix + "s1"

	store.Create(ctx, "s1")
	if got := mr.TTL(key); got != time.Hour {
		t.Fatalf("TTL after Create = %v, want 1h", got)
	}

	mr.FastForward(50 * time.Minute)
	if _, err := store.Update(ctx, "s1", func(*domain.Session) error { return nil }); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got := mr.TTL(key); got != time.Hour {
		t.Errorf("TTL after Update = %v, want refreshed to 1h", got)
	}

	mr.FastForward(50 * time.Minute)
	if _, err := store.Get(ctx, "s1"); err != nil {
		t.Errorf("touched session should still exist: %v", err)
	}

	mr.FastForward(11 * time.Minute)
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected expiry after the TTL, got %v", err)
	}
}

func TestRedisSessionStore_UpdateRetriesOnConflict(t *testing.T) {
	store, _, _ := newRedisTestStore(t, 0)
	ctx := context.Background()
	store.Create(ctx, "s1")

	calls := 0
	sess, err := store.Update(ctx, "s1", func(s *domain.Session) error {
		calls++
		if calls == 1 {
			// A competing writer lands between WATCH and EXEC.
			if _, err := store.Update(ctx, "s1", func(other *domain.Session) error {
				other.Data[domain.FieldContact] = "ada@example.com"
				return nil
			}); err != nil {
				t.Fatalf("competing update: %v", err)
			}
		}
		s.State = domain.StateLeadContact
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("mutator calls = %d, want a retry", calls)
	}
	if sess.State != domain.StateLeadContact || sess.Data[domain.FieldContact] != "ada@example.com" {
		t.Errorf("retry should see the competing write, got %+v", sess)
	}
}

func TestRedisSessionStore_UpdateGivesUpUnderContention(t *testing.T) {
	store, _, _ := newRedisTestStore(t, 0)
	ctx := context.Background()
	store.Create(ctx, "s1")
	key := defaultSessionPrefix + "s1"

	calls := 0
	_, err := store.Update(ctx, "s1", func(*domain.Session) error {
		calls++
		raw, err := store.client.Get(ctx, key).Result()
		if err != nil {
			return err
		}
		return store.client.Set(ctx, key, raw, 0).Err()
	})
	if err == nil || !strings.Contains(err.Error(), "contention") {
		t.Fatalf("expected contention error, got %v", err)
	}
	if calls != maxUpdateRetries {
		t.Errorf("mutator calls = %d, want %d", calls, maxUpdateRetries)
	}
}

func TestRedisSessionStore_DecodeDefaultsInvalidState(t *testing.T) {
	store, mr, _ := newRedisTestStore(t, 0)
	if err := mr.Set(defaultSessionPrefix+"old", `{"id":"old","state":"awaiting_fax"}`); err != nil {
		t.Fatal(err)
	}

	sess, err := store.Get(context.Background(), "old")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sess.State != domain.StateIdle {
		t.Errorf("state = %s, want idle", sess.State)
	}
	if sess.Data == nil {
		t.Error("expected an empty data map")
	}
}

func TestRedisSessionStore_CorruptValue(t *testing.T) {
	store, mr, _ := newRedisTestStore(t, 0)
	mr.Set(defaultSessionPrefix+"bad", "not json")

	if _, err := store.Get(context.Background(), "bad"); err == nil || errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected a decode error, got %v", err)
	}
}

func TestRedisSessionStore_PrefixAndPing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisSessionStore(client, "test:", 0, nil)
	ctx := context.Background()

	store.Create(ctx, "s1")
	if !mr.Exists("test:s1") {
		t.Error("expected the custom prefix")
	}
	if n, err := store.DeleteIdle(ctx, time.Now()); n != 0 || err != nil {
		t.Errorf("DeleteIdle() = %d, %v", n, err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	mr.Close()
	if err := store.Ping(ctx); err == nil {
		t.Error("expected Ping to fail once redis is gone")
	}
}
