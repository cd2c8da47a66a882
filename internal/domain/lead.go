package domain

import (
	"time"

	"github.com/google/uuid"
)

// BudgetNotProvided is stored when the user skips the optional budget step.
const BudgetNotProvided = "Not provided"

// Lead is a completed project enquiry handed off to the sales team.
type Lead struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Project   string    `json:"project"`
	Budget    string    `json:"budget"`
	Timeline  string    `json:"timeline"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLead creates a Lead with a fresh id.
func NewLead(sessionID, name, contact, project, budget, timeline string, now time.Time) *Lead {
	return &Lead{
		ID:        uuid.New(),
		SessionID: sessionID,
		Name:      name,
		Contact:   contact,
		Project:   project,
		Budget:    budget,
		Timeline:  timeline,
		CreatedAt: now.UTC(),
	}
}

// Booking is a requested consultation slot.
type Booking struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBooking creates a Booking with a fresh id.
func NewBooking(sessionID, date, slot string, now time.Time) *Booking {
	return &Booking{
		ID:        uuid.New(),
		SessionID: sessionID,
		Date:      date,
		Time:      slot,
		CreatedAt: now.UTC(),
	}
}
