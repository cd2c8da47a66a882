package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jkindrix/coral/internal/database"
	"github.com/jkindrix/coral/internal/domain"
	apperrors "github.com/jkindrix/coral/internal/errors"
)

// PostgresLeadRepository implements domain.LeadRepository on the leads and
// bookings tables.
type PostgresLeadRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresLeadRepository creates a new PostgresLeadRepository.
func NewPostgresLeadRepository(pool *pgxpool.Pool) *PostgresLeadRepository {
	return &PostgresLeadRepository{pool: pool}
}

// SaveLead inserts a lead. Re-delivering the same lead id is a no-op so the
// dispatcher can retry safely.
func (r *PostgresLeadRepository) SaveLead(ctx context.Context, lead *domain.Lead) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, LeadColumns.Insert(),
		lead.ID, lead.SessionID, lead.Name, lead.Contact,
		lead.Project, lead.Budget, lead.Timeline, lead.CreatedAt,
	)
	if err != nil && !database.IsUniqueViolation(err) {
		return fmt.Errorf("failed to insert lead: %w", err)
	}
	return nil
}

// SaveBooking inserts a booking, ignoring duplicate deliveries.
func (r *PostgresLeadRepository) SaveBooking(ctx context.Context, booking *domain.Booking) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, BookingColumns.Insert(),
		booking.ID, booking.SessionID, booking.Date, booking.Time, booking.CreatedAt,
	)
	if err != nil && !database.IsUniqueViolation(err) {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// ListLeads retrieves leads with pagination, newest first.
func (r *PostgresLeadRepository) ListLeads(ctx context.Context, limit, offset int) ([]*domain.Lead, error) {
	limit, offset = NormalizePagination(limit, offset)
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + LeadColumns.Select() + ` FROM leads ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.DatabaseError("list leads", err)
	}

	leads, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Lead, error) {
		var l domain.Lead
		err := row.Scan(&l.ID, &l.SessionID, &l.Name, &l.Contact, &l.Project, &l.Budget, &l.Timeline, &l.CreatedAt)
		return &l, err
	})
	if err != nil {
		return nil, apperrors.DatabaseError("scan leads", err)
	}
	return leads, nil
}

// ListBookings retrieves bookings with pagination, newest first.
func (r *PostgresLeadRepository) ListBookings(ctx context.Context, limit, offset int) ([]*domain.Booking, error) {
	limit, offset = NormalizePagination(limit, offset)
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + BookingColumns.Select() + ` FROM bookings ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.DatabaseError("list bookings", err)
	}

	bookings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Booking, error) {
		var b domain.Booking
		err := row.Scan(&b.ID, &b.SessionID, &b.Date, &b.Time, &b.CreatedAt)
		return &b, err
	})
	if err != nil {
		return nil, apperrors.DatabaseError("scan bookings", err)
	}
	return bookings, nil
}

// Ping checks the pool (handler.HealthChecker).
func (r *PostgresLeadRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
