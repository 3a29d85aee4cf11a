package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"billova/internal/core"
	"billova/internal/services"
)

// errorResponse is the generic API error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// paginatedResponse is the list envelope: total row count plus links to the
// adjacent pages, nil when there is none.
type paginatedResponse struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  any     `json:"results"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed", "status", status, "message", message)
	}
	respondJSON(w, status, errorResponse{Error: message})
}

// respondServiceError maps domain errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrPermissionDenied):
		respondError(w, r, http.StatusForbidden, "permission denied")
	case errors.Is(err, core.ErrDuplicate):
		respondError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidCurrency),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, services.ErrPasswordMismatch):
		respondError(w, r, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Unhandled service error", "error", err)
		respondError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// respondPage writes one page of results wrapped in the list envelope.
func respondPage(w http.ResponseWriter, r *http.Request, p pagination, count int, results any) {
	respondJSON(w, http.StatusOK, paginatedResponse{
		Count:    count,
		Next:     pageLink(r, p, count, +1),
		Previous: pageLink(r, p, count, -1),
		Results:  results,
	})
}

// pageLink builds the URL of the adjacent page, or nil when out of range.
func pageLink(r *http.Request, p pagination, count, delta int) *string {
	page := p.Page + delta
	if page < 1 || (page-1)*p.PageSize >= count {
		return nil
	}
	u := *r.URL
	q := u.Query()
	q.Set("page", fmt.Sprint(page))
	q.Set("page_size", fmt.Sprint(p.PageSize))
	u.RawQuery = q.Encode()
	link := u.String()
	return &link
}
