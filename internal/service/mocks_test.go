package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jkindrix/coral/internal/domain"
)

// MockLeadRepository is a mock implementation of domain.LeadRepository.
type MockLeadRepository struct {
	mu       sync.Mutex
	leads    map[uuid.UUID]*domain.Lead
	bookings map[uuid.UUID]*domain.Booking

	// SaveError is returned by the first FailTimes saves (every save when
	// FailTimes is zero).
	SaveError error
	FailTimes int

	SaveCalls int
	// Block, when set, stalls every save until it is closed.
	Block chan struct{}
}

func NewMockLeadRepository() *MockLeadRepository {
	return &MockLeadRepository{
		leads:    make(map[uuid.UUID]*domain.Lead),
		bookings: make(map[uuid.UUID]*domain.Booking),
	}
}

func (m *MockLeadRepository) fail() error {
	m.SaveCalls++
	if m.SaveError == nil {
		return nil
	}
	if m.FailTimes == 0 || m.SaveCalls <= m.FailTimes {
		return m.SaveError
	}
	return nil
}

func (m *MockLeadRepository) wait(ctx context.Context) error {
	if m.Block == nil {
		return nil
	}
	select {
	case <-m.Block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockLeadRepository) SaveLead(ctx context.Context, lead *domain.Lead) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.leads[lead.ID] = lead
	return nil
}

func (m *MockLeadRepository) SaveBooking(ctx context.Context, booking *domain.Booking) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.bookings[booking.ID] = booking
	return nil
}

func (m *MockLeadRepository) ListLeads(ctx context.Context, limit, offset int) ([]*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Lead, 0, len(m.leads))
	for _, l := range m.leads {
		out = append(out, l)
	}
	return out, nil
}

func (m *MockLeadRepository) ListBookings(ctx context.Context, limit, offset int) ([]*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, b)
	}
	return out, nil
}

func (m *MockLeadRepository) LeadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leads)
}

func (m *MockLeadRepository) BookingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

func (m *MockLeadRepository) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SaveCalls
}

// MockRecorder captures hand-off and sweep metrics.
type MockRecorder struct {
	mu       sync.Mutex
	handoffs map[string]int
	depth    int
	evicted  int
	active   int
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{handoffs: make(map[string]int)}
}

func (r *MockRecorder) RecordHandoff(kind, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handoffs[kind+"/"+status]++
}

func (r *MockRecorder) SetHandoffQueueDepth(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depth = n
}

func (r *MockRecorder) RecordSessionsEvicted(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted += n
}

func (r *MockRecorder) SetActiveSessions(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = count
}

func (r *MockRecorder) Count(kind, status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handoffs[kind+"/"+status]
}

// MockSessionRepository fails DeleteIdle with Err.
type MockSessionRepository struct {
	domain.SessionRepository
	Err        error
	LastBefore time.Time
}

func (m *MockSessionRepository) DeleteIdle(ctx context.Context, before time.Time) (int, error) {
	m.LastBefore = before
	return 0, m.Err
}
