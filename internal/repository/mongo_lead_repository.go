package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jkindrix/coral/internal/domain"
	apperrors "github.com/jkindrix/coral/internal/errors"
)

// leadDocument is the stored shape of a lead. Field names follow the lead
// records the marketing site already keeps (name, email, projectType, ...).
type leadDocument struct {
	ID          string    `bson:"_id"`
	SessionID   string    `bson:"sessionId"`
	Name        string    `bson:"name"`
	Email       string    `bson:"email"`
	ProjectType string    `bson:"projectType"`
	Budget      string    `bson:"budget"`
	Timeline    string    `bson:"timeline"`
	Timestamp   time.Time `bson:"timestamp"`
}

type bookingDocument struct {
	ID        string    `bson:"_id"`
	SessionID string    `bson:"sessionId"`
	Date      string    `bson:"date"`
	Time      string    `bson:"time"`
	Timestamp time.Time `bson:"timestamp"`
}

func toLeadDocument(l *domain.Lead) leadDocument {
	return leadDocument{
		ID:          l.ID.String(),
		SessionID:   l.SessionID,
		Name:        l.Name,
		Email:       l.Contact,
		ProjectType: l.Project,
		Budget:      l.Budget,
		Timeline:    l.Timeline,
		Timestamp:   l.CreatedAt,
	}
}

func (d leadDocument) toDomain() *domain.Lead {
	id, _ := uuid.Parse(d.ID)
	return &domain.Lead{
		ID:        id,
		SessionID: d.SessionID,
		Name:      d.Name,
		Contact:   d.Email,
		Project:   d.ProjectType,
		Budget:    d.Budget,
		Timeline:  d.Timeline,
		CreatedAt: d.Timestamp.UTC(),
	}
}

func toBookingDocument(b *domain.Booking) bookingDocument {
	return bookingDocument{
		ID:        b.ID.String(),
		SessionID: b.SessionID,
		Date:      b.Date,
		Time:      b.Time,
		Timestamp: b.CreatedAt,
	}
}

func (d bookingDocument) toDomain() *domain.Booking {
	id, _ := uuid.Parse(d.ID)
	return &domain.Booking{
		ID:        id,
		SessionID: d.SessionID,
		Date:      d.Date,
		Time:      d.Time,
		CreatedAt: d.Timestamp.UTC(),
	}
}

// MongoLeadRepository implements domain.LeadRepository on the leads and
// bookings collections.
type MongoLeadRepository struct {
	client   *mongo.Client
	leads    *mongo.Collection
	bookings *mongo.Collection
}

// NewMongoLeadRepository binds the repository to a database.
func NewMongoLeadRepository(client *mongo.Client, database string) *MongoLeadRepository {
	db := client.Database(database)
	return &MongoLeadRepository{
		client:   client,
		leads:    db.Collection("leads"),
		bookings: db.Collection("bookings"),
	}
}

// EnsureIndexes creates the timestamp indexes used by the list queries.
func (r *MongoLeadRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	model := mongo.IndexModel{Keys: bson.D{{Key: "timestamp", Value: -1}}}
	if _, err := r.leads.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("failed to create lead index: %w", err)
	}
	if _, err := r.bookings.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("failed to create booking index: %w", err)
	}
	return nil
}

// SaveLead inserts the lead document. Duplicate ids from retries are ignored.
func (r *MongoLeadRepository) SaveLead(ctx context.Context, lead *domain.Lead) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	if _, err := r.leads.InsertOne(ctx, toLeadDocument(lead)); err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to insert lead: %w", err)
	}
	return nil
}

// SaveBooking inserts the booking document.
func (r *MongoLeadRepository) SaveBooking(ctx context.Context, booking *domain.Booking) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	if _, err := r.bookings.InsertOne(ctx, toBookingDocument(booking)); err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// ListLeads returns leads newest first.
func (r *MongoLeadRepository) ListLeads(ctx context.Context, limit, offset int) ([]*domain.Lead, error) {
	var docs []leadDocument
	if err := r.find(ctx, r.leads, limit, offset, &docs); err != nil {
		return nil, apperrors.DatabaseError("list leads", err)
	}
	out := make([]*domain.Lead, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

// ListBookings returns bookings newest first.
func (r *MongoLeadRepository) ListBookings(ctx context.Context, limit, offset int) ([]*domain.Booking, error) {
	var docs []bookingDocument
	if err := r.find(ctx, r.bookings, limit, offset, &docs); err != nil {
		return nil, apperrors.DatabaseError("list bookings", err)
	}
	out := make([]*domain.Booking, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

func (r *MongoLeadRepository) find(ctx context.Context, coll *mongo.Collection, limit, offset int, results any) error {
	limit, offset = NormalizePagination(limit, offset)
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return err
	}
	return cursor.All(ctx, results)
}

// Ping checks connectivity (handler.HealthChecker).
func (r *MongoLeadRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}
