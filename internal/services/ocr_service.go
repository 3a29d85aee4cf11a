package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"billova/internal/amqp"
	"billova/internal/core"
	"billova/internal/ocr"
	"billova/internal/storage"
)

// ReceiptAnalyzer abstracts the vendor OCR client for testing.
type ReceiptAnalyzer interface {
	Analyze(ctx context.Context, filename string, image []byte) (*ocr.Result, error)
}

// OCRService turns receipt images into stored expenses.
type OCRService struct {
	analyzer  ReceiptAnalyzer
	storage   *storage.SQLiteRepository
	expenses  *ExpenseService
	publisher EventPublisher
}

func NewOCRService(analyzer ReceiptAnalyzer, storage *storage.SQLiteRepository, expenses *ExpenseService, publisher EventPublisher) *OCRService {
	return &OCRService{analyzer: analyzer, storage: storage, expenses: expenses, publisher: publisher}
}

// IngestReceipt analyzes the image and creates an expense from the result
// in a single transaction, attaching the fallback category and creating it
// on the fly if the owner does not have it yet. A receipt whose total
// cannot be read is rejected; every other field degrades to a fallback
// (date to now, issuer and text to empty).
func (s *OCRService) IngestReceipt(ctx context.Context, ownerID int64, filename string, image []byte) (*core.Expense, error) {
	result, err := s.analyzer.Analyze(ctx, filename, image)
	if err != nil {
		return nil, err
	}

	cents, err := core.ParseDecimalToCents(result.Total)
	if err != nil {
		return nil, fmt.Errorf("receipt total %q: %w", result.Total, err)
	}

	when := result.Date
	if when.IsZero() {
		slog.InfoContext(ctx, "Receipt has no usable date, falling back to now", "owner_id", ownerID)
		when = time.Now()
	}

	e := core.Expense{
		InvoiceDateTime: when,
		Price:           core.Money{Cents: cents},
		Currency:        s.expenses.resolveCurrency(ctx, ownerID, ""),
		InvoiceIssuer:   result.Issuer,
		InvoiceAsText:   result.RawText,
		OwnerID:         ownerID,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	saved, err := s.storage.CreateScannedExpense(ctx, e, s.expenses.globalOwnerID, core.GeneratedCategoryName)
	if err != nil {
		return nil, fmt.Errorf("save scanned expense: %w", err)
	}

	s.expenses.invalidateSummaries(ownerID)
	if s.publisher != nil {
		msg := amqp.NewExpenseEventMessage(amqp.EventExpenseCreated, saved.ID, saved.OwnerID, saved.Price.Cents, saved.Currency)
		if err := s.publisher.PublishExpenseEvent(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish expense event",
				"event", amqp.EventExpenseCreated, "expense_id", saved.ID, "error", err)
		}
	}

	slog.InfoContext(ctx, "Receipt ingested",
		"expense_id", saved.ID, "owner_id", ownerID, "price_cents", saved.Price.Cents)
	return saved, nil
}
