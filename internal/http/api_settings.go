package http

import (
	"net/http"

	"billova/internal/core"
)

type settingsDTO struct {
	ID             int64  `json:"id"`
	Currency       string `json:"currency"`
	Language       string `json:"language"`
	Timezone       string `json:"timezone"`
	NumericFormat  string `json:"numeric_format"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

type settingsRequest struct {
	Currency      string `json:"currency"`
	Language      string `json:"language"`
	Timezone      string `json:"timezone"`
	NumericFormat string `json:"numeric_format"`
}

func toSettingsDTO(st *core.UserSettings) settingsDTO {
	return settingsDTO{
		ID:             st.ID,
		Currency:       st.Currency,
		Language:       st.Language,
		Timezone:       st.Timezone,
		NumericFormat:  string(st.NumericFormat),
		ProfilePicture: st.ProfilePicture,
	}
}

// handleListSettings returns the caller's single settings row in the usual
// list envelope.
func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	p := s.parsePagination(r)

	st, err := s.accounts.Settings(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondPage(w, r, p, 1, []settingsDTO{toSettingsDTO(st)})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	st, err := s.accounts.Settings(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if st.ID != id {
		respondServiceError(w, r, core.ErrPermissionDenied)
		return
	}
	respondJSON(w, http.StatusOK, toSettingsDTO(st))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	st, err := s.accounts.Settings(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if st.ID != id {
		respondServiceError(w, r, core.ErrPermissionDenied)
		return
	}

	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	updated, err := s.accounts.UpdateSettings(r.Context(), user.ID, core.UserSettings{
		Currency:      sanitizeInput(req.Currency),
		Language:      sanitizeInput(req.Language),
		Timezone:      sanitizeInput(req.Timezone),
		NumericFormat: core.NumericFormat(sanitizeInput(req.NumericFormat)),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSettingsDTO(updated))
}
