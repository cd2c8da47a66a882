package repository

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/domain"
	"github.com/jkindrix/coral/internal/sanitize"
)

// LogLeadRepository records hand-offs in the structured log and keeps the
// most recent ones in memory for the admin endpoints.
type LogLeadRepository struct {
	logger   *zap.Logger
	capacity int

	mu       sync.RWMutex
	leads    []*domain.Lead
	bookings []*domain.Booking
}

// NewLogLeadRepository keeps up to capacity records of each kind.
func NewLogLeadRepository(logger *zap.Logger, capacity int) *LogLeadRepository {
	if capacity <= 0 {
		capacity = 200
	}
	return &LogLeadRepository{logger: logger, capacity: capacity}
}

// SaveLead logs the lead with its contact details masked.
func (r *LogLeadRepository) SaveLead(_ context.Context, lead *domain.Lead) error {
	r.logger.Info("new lead",
		zap.String("lead_id", lead.ID.String()),
		zap.String("session_id", lead.SessionID),
		zap.String("name", lead.Name),
		zap.String("contact", sanitize.MaskContact(lead.Contact)),
		zap.String("project", lead.Project),
		zap.String("budget", lead.Budget),
		zap.String("timeline", lead.Timeline),
	)

	r.mu.Lock()
	r.leads = appendBounded(r.leads, lead, r.capacity)
	r.mu.Unlock()
	return nil
}

// SaveBooking logs the booking request.
func (r *LogLeadRepository) SaveBooking(_ context.Context, booking *domain.Booking) error {
	r.logger.Info("new booking",
		zap.String("booking_id", booking.ID.String()),
		zap.String("session_id", booking.SessionID),
		zap.String("date", booking.Date),
		zap.String("time", booking.Time),
	)

	r.mu.Lock()
	r.bookings = appendBounded(r.bookings, booking, r.capacity)
	r.mu.Unlock()
	return nil
}

// ListLeads returns the retained leads newest first.
func (r *LogLeadRepository) ListLeads(_ context.Context, limit, offset int) ([]*domain.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return pageNewestFirst(r.leads, limit, offset), nil
}

// ListBookings returns the retained bookings newest first.
func (r *LogLeadRepository) ListBookings(_ context.Context, limit, offset int) ([]*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return pageNewestFirst(r.bookings, limit, offset), nil
}

func appendBounded[T any](items []T, item T, capacity int) []T {
	items = append(items, item)
	if len(items) > capacity {
		items = append(items[:0:0], items[len(items)-capacity:]...)
	}
	return items
}

func pageNewestFirst[T any](items []T, limit, offset int) []T {
	limit, offset = NormalizePagination(limit, offset)
	out := make([]T, 0, limit)
	for i := len(items) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, items[i])
	}
	return out
}
