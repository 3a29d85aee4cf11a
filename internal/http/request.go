package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"billova/internal/core"
)

// pagination holds the validated page parameters of a list request.
type pagination struct {
	Page     int
	PageSize int
}

func (p pagination) Offset() int { return (p.Page - 1) * p.PageSize }

// parsePagination reads page/page_size from the query string. Pages start
// at 1; the page size is clamped to the configured maximum.
func (s *Server) parsePagination(r *http.Request) pagination {
	p := pagination{Page: 1, PageSize: s.cfg.DefaultPageSize}

	if v := strings.TrimSpace(r.URL.Query().Get("page")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("page_size")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.PageSize = n
		}
	}
	if p.PageSize > s.cfg.MaxPageSize {
		p.PageSize = s.cfg.MaxPageSize
	}
	return p
}

// pathID extracts the {id} path segment as an int64.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id: %w", core.ErrInvalidInput)
	}
	return id, nil
}

// decodeJSON reads a bounded JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", core.ErrInvalidInput)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("malformed JSON: %w", core.ErrInvalidInput)
	}
	return nil
}

// sanitizeInput trims whitespace and strips control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
