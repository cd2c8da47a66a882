package repository

import (
	"strings"

	apperrors "github.com/jkindrix/coral/internal/errors"
)

// Pagination bounds for list queries.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// RequireSessionID rejects blank session identifiers before they reach a store.
func RequireSessionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.MissingField("sessionId")
	}
	return nil
}

// NormalizePagination clamps limit and offset to safe values.
func NormalizePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
