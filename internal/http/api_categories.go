package http

import (
	"net/http"

	"billova/internal/core"
)

type categoryDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type categoryRequest struct {
	Name string `json:"name"`
}

func toCategoryDTO(c *core.Category) categoryDTO {
	return categoryDTO{ID: c.ID, Name: c.Name}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	p := s.parsePagination(r)

	visible, err := s.categories.ListVisible(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	// Categories are few; paginate the in-memory slice.
	total := len(visible)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}

	results := make([]categoryDTO, 0, end-start)
	for i := start; i < end; i++ {
		results = append(results, toCategoryDTO(&visible[i]))
	}
	respondPage(w, r, p, total, results)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	c, err := s.categories.Create(r.Context(), user.ID, sanitizeInput(req.Name))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCategoryDTO(c))
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	c, err := s.categories.Get(r.Context(), user.ID, id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCategoryDTO(c))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	c, err := s.categories.Update(r.Context(), user.ID, id, sanitizeInput(req.Name))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCategoryDTO(c))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if err := s.categories.Delete(r.Context(), user.ID, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
