package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jkindrix/coral/internal/clock"
	"github.com/jkindrix/coral/internal/domain"
)

// MemorySessionStore implements domain.SessionRepository in process memory.
// Sessions are copied in and out so callers never share the stored map.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	clock    clock.Clock
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore(c clock.Clock) *MemorySessionStore {
	if c == nil {
		c = clock.New()
	}
	return &MemorySessionStore{
		sessions: make(map[string]*domain.Session),
		clock:    c,
	}
}

// Get returns a copy of the session or domain.ErrSessionNotFound.
func (s *MemorySessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Create initialises an idle session, or returns the existing one.
func (s *MemorySessionStore) Create(_ context.Context, id string) (*domain.Session, error) {
	if err := RequireSessionID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess.Clone(), nil
	}
	sess := domain.NewSession(id, s.clock.NowUTC())
	s.sessions[id] = sess
	return sess.Clone(), nil
}

// Update applies fn under the store lock. Unknown ids start from a fresh
// idle session.
func (s *MemorySessionStore) Update(_ context.Context, id string, fn domain.SessionMutator) (*domain.Session, error) {
	if err := RequireSessionID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var working *domain.Session
	if current, ok := s.sessions[id]; ok {
		working = current.Clone()
	} else {
		working = domain.NewSession(id, s.clock.NowUTC())
	}

	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = s.clock.NowUTC()
	s.sessions[id] = working
	return working.Clone(), nil
}

// DeleteIdle evicts sessions whose last update is before the cutoff.
func (s *MemorySessionStore) DeleteIdle(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(before) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of live sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Ping always succeeds; it lets the store stand in as a health dependency.
func (s *MemorySessionStore) Ping(context.Context) error {
	return nil
}
