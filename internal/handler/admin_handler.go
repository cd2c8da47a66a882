package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/audit"
	"github.com/jkindrix/coral/internal/domain"
	apperrors "github.com/jkindrix/coral/internal/errors"
	"github.com/jkindrix/coral/internal/middleware"
	"github.com/jkindrix/coral/internal/sanitize"
	"github.com/jkindrix/coral/internal/validation"
)

// AdminHandler serves the read-only lead and booking listings.
type AdminHandler struct {
	leads       domain.LeadRepository
	pagination  *validation.PaginationConfig
	auditLogger *audit.Logger
	logger      *zap.Logger
}

// AdminHandlerConfig holds configuration for AdminHandler.
type AdminHandlerConfig struct {
	Leads       domain.LeadRepository
	Pagination  *validation.PaginationConfig
	AuditLogger *audit.Logger
	Logger      *zap.Logger
}

// NewAdminHandler creates a new AdminHandler with all required dependencies.
func NewAdminHandler(cfg AdminHandlerConfig) *AdminHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	if cfg.AuditLogger == nil {
		cfg.AuditLogger = audit.NewLogger(cfg.Logger)
	}
	if cfg.Pagination == nil {
		cfg.Pagination = validation.DefaultPaginationConfig()
	}
	return &AdminHandler{
		leads:       cfg.Leads,
		pagination:  cfg.Pagination,
		auditLogger: cfg.AuditLogger,
		logger:      cfg.Logger,
	}
}

// RegisterRoutes registers admin routes on the router.
// Note: These routes require the admin auth middleware to be applied by the caller.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/leads", h.ListLeads)
	r.Get("/bookings", h.ListBookings)
}

// LeadsResponse is the body of GET /admin/leads. Contact details are
// masked unless the request carries ?reveal=true.
type LeadsResponse struct {
	Leads  []*domain.Lead `json:"leads"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// BookingsResponse is the body of GET /admin/bookings.
type BookingsResponse struct {
	Bookings []*domain.Booking `json:"bookings"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// ListLeads handles GET /admin/leads.
func (h *AdminHandler) ListLeads(w http.ResponseWriter, r *http.Request) {
	page, err := h.parsePagination(r)
	if err != nil {
		APIErrorWithRequest(w, r, err)
		return
	}

	leads, err := h.leads.ListLeads(r.Context(), page.Limit, page.Offset)
	if err != nil {
		middleware.LoggerWithCorrelation(r.Context(), h.logger).Error("failed to list leads", zap.Error(err))
		APIErrorWithRequest(w, r, err)
		return
	}
	if leads == nil {
		leads = []*domain.Lead{}
	}

	if r.URL.Query().Get("reveal") != "true" {
		leads = maskLeads(leads)
	}

	h.auditLogger.DataAccess(r.Context(), middleware.AdminUser(r.Context()), "leads",
		middleware.RequestInfo(r), page.Limit, page.Offset, len(leads))

	JSONWithRequest(w, r, http.StatusOK, LeadsResponse{
		Leads:  leads,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

// ListBookings handles GET /admin/bookings.
func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	page, err := h.parsePagination(r)
	if err != nil {
		APIErrorWithRequest(w, r, err)
		return
	}

	bookings, err := h.leads.ListBookings(r.Context(), page.Limit, page.Offset)
	if err != nil {
		middleware.LoggerWithCorrelation(r.Context(), h.logger).Error("failed to list bookings", zap.Error(err))
		APIErrorWithRequest(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []*domain.Booking{}
	}

	h.auditLogger.DataAccess(r.Context(), middleware.AdminUser(r.Context()), "bookings",
		middleware.RequestInfo(r), page.Limit, page.Offset, len(bookings))

	JSONWithRequest(w, r, http.StatusOK, BookingsResponse{
		Bookings: bookings,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
}

func (h *AdminHandler) parsePagination(r *http.Request) (*validation.PaginationParams, error) {
	q := r.URL.Query()
	limit, err := atoiOrZero(q.Get("limit"))
	if err != nil {
		return nil, apperrors.InvalidInput("limit must be an integer")
	}
	offset, err := atoiOrZero(q.Get("offset"))
	if err != nil {
		return nil, apperrors.InvalidInput("offset must be an integer")
	}
	return validation.ValidatePagination(limit, offset, h.pagination)
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// maskLeads returns copies of leads with the contact field masked.
func maskLeads(leads []*domain.Lead) []*domain.Lead {
	out := make([]*domain.Lead, len(leads))
	for i, l := range leads {
		c := *l
		c.Contact = sanitize.MaskContact(c.Contact)
		out[i] = &c
	}
	return out
}
