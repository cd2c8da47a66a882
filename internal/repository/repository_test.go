package repository

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/domain"
)

func TestNormalizePagination(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, DefaultPageSize, 0},
		{10, 5, 10, 5},
		{10000, -3, MaxPageSize, 0},
	}
	for _, tt := range tests {
		l, o := NormalizePagination(tt.limit, tt.offset)
		if l != tt.wantLimit || o != tt.wantOffset {
			t.Errorf("NormalizePagination(%d,%d) = %d,%d", tt.limit, tt.offset, l, o)
		}
	}
}

func TestTableColumns_Insert(t *testing.T) {
	want := "INSERT INTO bookings (id, session_id, date, time, created_at) VALUES ($1, $2, $3, $4, $5)"
	if got := BookingColumns.Insert(); got != want {
		t.Errorf("Insert() = %q", got)
	}
	if len(SessionColumns.Columns) != 5 {
		t.Errorf("session columns drifted: %v", SessionColumns.Columns)
	}
}

func TestWithQueryTimeout_RespectsShorterDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ctx, cancel2 := WithQueryTimeout(parent)
	defer cancel2()

	d1, _ := parent.Deadline()
	d2, _ := ctx.Deadline()
	if !d1.Equal(d2) {
		t.Error("a sooner parent deadline should be kept")
	}
}

func TestLogLeadRepository_ListNewestFirst(t *testing.T) {
	repo := NewLogLeadRepository(zap.NewNop(), 3)
	ctx := context.Background()
	now := time.Now()

	for _, name := range []string{"a", "b", "c", "d"} {
		_ = repo.SaveLead(ctx, domain.NewLead("s", name, "x@y.com", "p", "b", "t", now))
	}

	leads, _ := repo.ListLeads(ctx, 10, 0)
	if len(leads) != 3 {
		t.Fatalf("expected capacity-bounded 3 leads, got %d", len(leads))
	}
	if leads[0].Name != "d" || leads[2].Name != "b" {
		t.Errorf("order = %s,%s,%s", leads[0].Name, leads[1].Name, leads[2].Name)
	}

	page, _ := repo.ListLeads(ctx, 1, 1)
	if len(page) != 1 || page[0].Name != "c" {
		t.Errorf("page = %+v", page)
	}

	_ = repo.SaveBooking(ctx, domain.NewBooking("s", "monday", "10am", now))
	bookings, _ := repo.ListBookings(ctx, 0, 0)
	if len(bookings) != 1 || bookings[0].Time != "10am" {
		t.Errorf("bookings = %+v", bookings)
	}
}

func TestDecodeSession(t *testing.T) {
	sess, err := decodeSession([]byte(`{"id":"s1","state":"lead_budget","data":{"name":"Ada"}}`))
	if err != nil {
		t.Fatalf("decodeSession: %v", err)
	}
	if sess.State != domain.StateLeadBudget || sess.Data[domain.FieldName] != "Ada" {
		t.Errorf("decoded %+v", sess)
	}

	sess, _ = decodeSession([]byte(`{"id":"s2","state":"bogus"}`))
	if sess.State != domain.StateIdle || sess.Data == nil {
		t.Errorf("unknown state should reset to idle with data map, got %+v", sess)
	}

	if _, err := decodeSession([]byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestMongoDocuments_RoundTrip(t *testing.T) {
	now := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	lead := domain.NewLead("s1", "Ada", "ada@example.com", "web app", domain.BudgetNotProvided, "Q3", now)

	doc := toLeadDocument(lead)
	if doc.Email != "ada@example.com" || doc.ProjectType != "web app" || doc.ID != lead.ID.String() {
		t.Errorf("lead document = %+v", doc)
	}
	if back := doc.toDomain(); *back != *lead {
		t.Errorf("lead round trip = %+v, expected %+v", back, lead)
	}

	booking := domain.NewBooking("s1", "friday", "2pm", now)
	if back := toBookingDocument(booking).toDomain(); *back != *booking {
		t.Errorf("booking round trip = %+v", back)
	}
}
