package domain

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned by SessionRepository.Get for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// Session is the persisted context of one conversation.
type Session struct {
	ID        string           `json:"id"`
	State     State            `json:"state"`
	Data      map[Field]string `json:"data"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewSession returns an idle session with no collected data.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		State:     StateIdle,
		Data:      map[Field]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so stores never share the Data map with callers.
func (s *Session) Clone() *Session {
	c := *s
	c.Data = make(map[Field]string, len(s.Data))
	for k, v := range s.Data {
		c.Data[k] = v
	}
	return &c
}

// Lead builds the hand-off record from the collected lead fields.
func (s *Session) Lead(now time.Time) *Lead {
	return NewLead(s.ID, s.Data[FieldName], s.Data[FieldContact], s.Data[FieldProject],
		s.Data[FieldBudget], s.Data[FieldTimeline], now)
}

// Booking builds the hand-off record from the collected schedule fields.
func (s *Session) Booking(now time.Time) *Booking {
	return NewBooking(s.ID, s.Data[FieldDate], s.Data[FieldTime], now)
}
