package domain

import (
	"context"
	"time"
)

// SessionMutator changes a session in place during Update. Returning an
// error aborts the update without persisting anything.
type SessionMutator func(*Session) error

// SessionRepository defines the interface for conversation state persistence.
type SessionRepository interface {
	// Get returns the session or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Create initialises an idle session. Creating an id that already exists
	// returns the existing session unchanged.
	Create(ctx context.Context, id string) (*Session, error)

	// Update applies fn to the stored session and persists the result.
	// An unknown id is initialised as a fresh idle session before fn runs.
	Update(ctx context.Context, id string, fn SessionMutator) (*Session, error)

	// DeleteIdle removes sessions not updated since before and returns
	// how many were removed.
	DeleteIdle(ctx context.Context, before time.Time) (int, error)
}

// LeadRepository persists handed-off leads and bookings.
type LeadRepository interface {
	SaveLead(ctx context.Context, lead *Lead) error
	SaveBooking(ctx context.Context, booking *Booking) error

	// ListLeads returns leads newest first.
	ListLeads(ctx context.Context, limit, offset int) ([]*Lead, error)

	// ListBookings returns bookings newest first.
	ListBookings(ctx context.Context, limit, offset int) ([]*Booking, error)
}
