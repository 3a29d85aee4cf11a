// Package services implements the use-case layer on top of storage:
// accounts, categories, expenses, monthly summaries and receipt ingestion.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"billova/internal/amqp"
	"billova/internal/cache"
	"billova/internal/core"
	"billova/internal/storage"
)

// EventPublisher emits expense lifecycle events. May be nil (publishing
// disabled); failures never fail the originating request.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error
}

// ExpenseInput carries the caller-supplied fields of an expense. Currency
// is normally empty: the API never accepts it and the effective currency is
// resolved server-side (see resolveCurrency).
type ExpenseInput struct {
	InvoiceDateTime time.Time
	PriceCents      int64
	Currency        string
	Note            string
	InvoiceIssuer   string
	InvoiceAsText   string
	CategoryNames   []string
}

// ExpenseService orchestrates expense operations.
type ExpenseService struct {
	storage       *storage.SQLiteRepository
	publisher     EventPublisher
	globalOwnerID int64

	// Monthly summaries are cached per user. Every mutation bumps the
	// owner's generation so stale pages can never be served; superseded
	// entries age out via TTL and LRU eviction.
	summaryCache *cache.LRUCache[[]core.MonthGroup]
	genMu        sync.Mutex
	generations  map[int64]uint64
}

func NewExpenseService(storage *storage.SQLiteRepository, publisher EventPublisher, globalOwnerID int64) *ExpenseService {
	return &ExpenseService{
		storage:       storage,
		publisher:     publisher,
		globalOwnerID: globalOwnerID,
		summaryCache:  cache.NewLRUCache[[]core.MonthGroup](256, 5*time.Minute),
		generations:   make(map[int64]uint64),
	}
}

// SummaryCache exposes the cache for cleanup registration.
func (s *ExpenseService) SummaryCache() cache.Cleaner {
	return s.summaryCache
}

// resolveCurrency picks the effective currency for a new expense:
// explicit value > owner's settings > hardcoded default. The result is
// fixed on the record; later settings changes do not rewrite it.
func (s *ExpenseService) resolveCurrency(ctx context.Context, ownerID int64, explicit string) string {
	if core.ValidCurrency(explicit) {
		return explicit
	}
	settings, err := s.storage.GetSettingsByOwner(ctx, ownerID)
	if err != nil {
		slog.WarnContext(ctx, "No settings for owner, falling back to default currency",
			"owner_id", ownerID, "error", err)
		return core.DefaultCurrency
	}
	return settings.Currency
}

// resolveCategories maps category names to rows, trying the owner's own
// categories first and the global account's second.
func (s *ExpenseService) resolveCategories(ctx context.Context, ownerID int64, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		c, err := s.storage.GetCategoryByName(ctx, ownerID, name)
		if err != nil {
			c, err = s.storage.GetCategoryByName(ctx, s.globalOwnerID, name)
		}
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", name, core.ErrNotFound)
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (s *ExpenseService) Create(ctx context.Context, ownerID int64, in ExpenseInput) (*core.Expense, error) {
	when := in.InvoiceDateTime
	if when.IsZero() {
		when = time.Now()
	}

	e := core.Expense{
		InvoiceDateTime: when,
		Price:           core.Money{Cents: in.PriceCents},
		Currency:        s.resolveCurrency(ctx, ownerID, in.Currency),
		Note:            in.Note,
		InvoiceIssuer:   in.InvoiceIssuer,
		InvoiceAsText:   in.InvoiceAsText,
		OwnerID:         ownerID,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	categoryIDs, err := s.resolveCategories(ctx, ownerID, in.CategoryNames)
	if err != nil {
		return nil, err
	}

	saved, err := s.storage.CreateExpense(ctx, e, categoryIDs)
	if err != nil {
		return nil, fmt.Errorf("save expense: %w", err)
	}

	s.invalidateSummaries(ownerID)
	s.publish(ctx, amqp.EventExpenseCreated, saved)
	return saved, nil
}

// Get returns the expense if it belongs to ownerID.
func (s *ExpenseService) Get(ctx context.Context, ownerID, id int64) (*core.Expense, error) {
	e, err := s.storage.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.OwnerID != ownerID {
		slog.WarnContext(ctx, "Permission denied on expense",
			"expense_id", id, "owner_id", e.OwnerID, "caller_id", ownerID)
		return nil, core.ErrPermissionDenied
	}
	return e, nil
}

func (s *ExpenseService) List(ctx context.Context, ownerID int64, limit, offset int) ([]core.Expense, int, error) {
	expenses, err := s.storage.ListExpenses(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.storage.CountExpenses(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	return expenses, total, nil
}

// Update rewrites an owned expense from the input. The stored currency is
// kept: it was fixed when the expense was created.
func (s *ExpenseService) Update(ctx context.Context, ownerID, id int64, in ExpenseInput) (*core.Expense, error) {
	existing, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	when := in.InvoiceDateTime
	if when.IsZero() {
		when = existing.InvoiceDateTime
	}

	e := *existing
	e.InvoiceDateTime = when
	e.Price = core.Money{Cents: in.PriceCents}
	e.Note = in.Note
	e.InvoiceIssuer = in.InvoiceIssuer
	e.InvoiceAsText = in.InvoiceAsText
	if err := e.Validate(); err != nil {
		return nil, err
	}

	categoryIDs, err := s.resolveCategories(ctx, ownerID, in.CategoryNames)
	if err != nil {
		return nil, err
	}

	if err := s.storage.UpdateExpense(ctx, e, categoryIDs); err != nil {
		return nil, fmt.Errorf("update expense: %w", err)
	}

	s.invalidateSummaries(ownerID)
	updated, err := s.storage.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, amqp.EventExpenseUpdated, updated)
	return updated, nil
}

func (s *ExpenseService) Delete(ctx context.Context, ownerID, id int64) error {
	e, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.invalidateSummaries(ownerID)
	s.publish(ctx, amqp.EventExpenseDeleted, e)
	return nil
}

// MonthlySummary groups the owner's expenses by calendar month, most
// recent first, sums each group and attaches the distinct category names
// used in that month. It returns one page of groups plus the total number
// of groups.
func (s *ExpenseService) MonthlySummary(ctx context.Context, ownerID int64, limit, offset int) ([]core.MonthGroup, int, error) {
	groups, ok := s.cachedSummary(ownerID)
	if !ok {
		totals, err := s.storage.MonthlyTotals(ctx, ownerID)
		if err != nil {
			return nil, 0, fmt.Errorf("monthly totals: %w", err)
		}
		byMonth, err := s.storage.MonthCategoryNames(ctx, ownerID)
		if err != nil {
			return nil, 0, fmt.Errorf("month categories: %w", err)
		}

		groups = make([]core.MonthGroup, 0, len(totals))
		for _, t := range totals {
			month, err := time.Parse("2006-01", t.Month)
			if err != nil {
				return nil, 0, fmt.Errorf("parse month key %q: %w", t.Month, err)
			}
			names := byMonth[t.Month]
			if names == nil {
				names = []string{}
			}
			groups = append(groups, core.MonthGroup{
				Year:       month.Year(),
				Month:      month.Month(),
				TotalSpent: core.Money{Cents: t.TotalCents},
				Categories: names,
			})
		}
		s.storeSummary(ownerID, groups)
	}

	total := len(groups)
	if offset >= total {
		return []core.MonthGroup{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return groups[offset:end], total, nil
}

func (s *ExpenseService) publish(ctx context.Context, event string, e *core.Expense) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewExpenseEventMessage(event, e.ID, e.OwnerID, e.Price.Cents, e.Currency)
	if err := s.publisher.PublishExpenseEvent(ctx, msg); err != nil {
		// Best effort only; the expense is already committed.
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"event", event, "expense_id", e.ID, "error", err)
	}
}

func (s *ExpenseService) summaryKey(ownerID int64) string {
	s.genMu.Lock()
	gen := s.generations[ownerID]
	s.genMu.Unlock()
	return fmt.Sprintf("summary:%d:%d", ownerID, gen)
}

func (s *ExpenseService) cachedSummary(ownerID int64) ([]core.MonthGroup, bool) {
	return s.summaryCache.Get(s.summaryKey(ownerID))
}

func (s *ExpenseService) storeSummary(ownerID int64, groups []core.MonthGroup) {
	s.summaryCache.Set(s.summaryKey(ownerID), groups)
}

func (s *ExpenseService) invalidateSummaries(ownerID int64) {
	s.genMu.Lock()
	s.generations[ownerID]++
	s.genMu.Unlock()
}
