package http

import (
	"log/slog"
	"net/http"
	"strings"
)

// frontendLogRequest is the browser-side log relay payload.
type frontendLogRequest struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Extra   map[string]any `json:"extra"`
}

// handleFrontendLog re-emits browser log events into the server pipeline.
// Operational sink only; nothing is persisted.
func (s *Server) handleFrontendLog(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	var req frontendLogRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, r, http.StatusBadRequest, "message is required")
		return
	}

	level := slog.LevelInfo
	switch strings.ToLower(req.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	slog.Log(r.Context(), level, "Frontend: "+sanitizeInput(req.Message),
		"source", "frontend",
		"user_id", user.ID,
		"extra", req.Extra)
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "logged"})
}
