package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"billova/internal/core"
	"billova/internal/ocr"
	"billova/internal/services"
)

// expenseDTO is the wire representation of an expense. Price travels as a
// decimal string; currency is reported but never accepted on input.
type expenseDTO struct {
	ID              int64     `json:"id"`
	InvoiceDateTime time.Time `json:"invoice_date_time"`
	Price           string    `json:"price"`
	Currency        string    `json:"currency"`
	Note            string    `json:"note"`
	InvoiceIssuer   string    `json:"invoice_issuer"`
	InvoiceAsText   string    `json:"invoice_as_text"`
	Categories      []string  `json:"categories"`
}

type expenseRequest struct {
	InvoiceDateTime string   `json:"invoice_date_time"`
	Price           string   `json:"price"`
	Note            string   `json:"note"`
	InvoiceIssuer   string   `json:"invoice_issuer"`
	InvoiceAsText   string   `json:"invoice_as_text"`
	Categories      []string `json:"categories"`
}

// Accepted request date layouts, tried in order.
var requestDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02",
}

func (req *expenseRequest) toInput() (services.ExpenseInput, error) {
	in := services.ExpenseInput{
		Note:          sanitizeInput(req.Note),
		InvoiceIssuer: sanitizeInput(req.InvoiceIssuer),
		InvoiceAsText: req.InvoiceAsText,
	}

	cents, err := core.ParseDecimalToCents(req.Price)
	if err != nil {
		return in, fmt.Errorf("price %q: %w", req.Price, err)
	}
	in.PriceCents = cents

	if req.InvoiceDateTime != "" {
		var parsed time.Time
		var parseErr error
		for _, layout := range requestDateLayouts {
			if parsed, parseErr = time.Parse(layout, req.InvoiceDateTime); parseErr == nil {
				break
			}
		}
		if parseErr != nil {
			return in, fmt.Errorf("invoice_date_time %q: %w", req.InvoiceDateTime, core.ErrInvalidDate)
		}
		in.InvoiceDateTime = parsed
	}

	for _, name := range req.Categories {
		if name = sanitizeInput(name); name != "" {
			in.CategoryNames = append(in.CategoryNames, name)
		}
	}
	return in, nil
}

func toExpenseDTO(e *core.Expense) expenseDTO {
	names := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		names = append(names, c.Name)
	}
	return expenseDTO{
		ID:              e.ID,
		InvoiceDateTime: e.InvoiceDateTime,
		Price:           e.Price.Decimal(),
		Currency:        e.Currency,
		Note:            e.Note,
		InvoiceIssuer:   e.InvoiceIssuer,
		InvoiceAsText:   e.InvoiceAsText,
		Categories:      names,
	}
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	p := s.parsePagination(r)

	expenses, total, err := s.expenses.List(r.Context(), user.ID, p.PageSize, p.Offset())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	results := make([]expenseDTO, 0, len(expenses))
	for i := range expenses {
		results = append(results, toExpenseDTO(&expenses[i]))
	}
	respondPage(w, r, p, total, results)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	e, err := s.expenses.Create(r.Context(), user.ID, in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toExpenseDTO(e))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	e, err := s.expenses.Get(r.Context(), user.ID, id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toExpenseDTO(e))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	e, err := s.expenses.Update(r.Context(), user.ID, id, in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toExpenseDTO(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	id, err := pathID(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if err := s.expenses.Delete(r.Context(), user.ID, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// monthGroupDTO is one row of the monthly summary.
type monthGroupDTO struct {
	Month      string   `json:"month"`
	TotalSpent string   `json:"total_spent"`
	Categories []string `json:"categories"`
}

func (s *Server) handleMonthlyExpenses(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	p := s.parsePagination(r)

	groups, total, err := s.expenses.MonthlySummary(r.Context(), user.ID, p.PageSize, p.Offset())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	results := make([]monthGroupDTO, 0, len(groups))
	for _, g := range groups {
		results = append(results, monthGroupDTO{
			Month:      g.Label(),
			TotalSpent: g.TotalSpent.Decimal(),
			Categories: g.Categories,
		})
	}
	respondPage(w, r, p, total, results)
}

// handleOCRIngest accepts a multipart receipt image and returns the created
// expense. Vendor failures never leave partial rows behind.
func (s *Server) handleOCRIngest(w http.ResponseWriter, r *http.Request) {
	if s.ocr == nil {
		respondError(w, r, http.StatusServiceUnavailable, "receipt scanning is not configured")
		return
	}
	user := currentUser(r.Context())

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, r, http.StatusBadRequest, "expected a multipart image upload")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "missing image upload")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "could not read image upload")
		return
	}

	e, err := s.ocr.IngestReceipt(r.Context(), user.ID, header.Filename, image)
	if err != nil {
		switch {
		case errors.Is(err, ocr.ErrMissingTotal), errors.Is(err, core.ErrInvalidAmount):
			respondError(w, r, http.StatusBadRequest, "could not read a total from the receipt")
		case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrInvalidDate):
			respondServiceError(w, r, err)
		default:
			respondError(w, r, http.StatusBadGateway, "receipt analysis failed")
		}
		return
	}
	respondJSON(w, http.StatusCreated, toExpenseDTO(e))
}
