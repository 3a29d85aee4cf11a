package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"billova/internal/amqp"
	"billova/internal/core"
	"billova/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// recordingPublisher captures published events instead of talking to a broker.
type recordingPublisher struct {
	messages []*amqp.ExpenseEventMessage
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, msg *amqp.ExpenseEventMessage) error {
	p.messages = append(p.messages, msg)
	return nil
}

// ServiceTestSuite wires the real services against a fresh SQLite file per
// test, with a global account and one regular user pre-created.
type ServiceTestSuite struct {
	suite.Suite
	repo       *storage.SQLiteRepository
	publisher  *recordingPublisher
	expenses   *ExpenseService
	categories *CategoryService
	ctx        context.Context

	global *core.User
	user   *core.User
}

func (s *ServiceTestSuite) SetupTest() {
	repo, err := storage.NewSQLiteRepository(filepath.Join(s.T().TempDir(), "test.db"))
	require.NoError(s.T(), err, "failed to create test database")
	s.repo = repo
	s.ctx = context.Background()

	s.global, err = repo.CreateUser(s.ctx, "global", "global@example.com", "hash", false)
	require.NoError(s.T(), err)
	s.user, err = repo.CreateUser(s.ctx, "anna", "anna@example.com", "hash", true)
	require.NoError(s.T(), err)

	s.publisher = &recordingPublisher{}
	s.expenses = NewExpenseService(repo, s.publisher, s.global.ID)
	s.categories = NewCategoryService(repo, s.global.ID)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *ServiceTestSuite) TestCreateUsesSettingsCurrency() {
	_, err := s.repo.CreateUser(s.ctx, "bob", "bob@example.com", "hash", true)
	require.NoError(s.T(), err)
	bob, err := s.repo.GetUserByUsername(s.ctx, "bob")
	require.NoError(s.T(), err)

	settings, err := s.repo.GetSettingsByOwner(s.ctx, bob.ID)
	require.NoError(s.T(), err)
	settings.Currency = "USD"
	require.NoError(s.T(), s.repo.UpdateSettings(s.ctx, *settings))

	e, err := s.expenses.Create(s.ctx, bob.ID, ExpenseInput{PriceCents: 1250})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "USD", e.Currency)

	// Changing the settings afterwards must not rewrite the stored record.
	settings.Currency = "GBP"
	require.NoError(s.T(), s.repo.UpdateSettings(s.ctx, *settings))
	got, err := s.expenses.Get(s.ctx, bob.ID, e.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "USD", got.Currency)
}

func (s *ServiceTestSuite) TestCreateExplicitCurrencyWins() {
	e, err := s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{PriceCents: 500, Currency: "CHF"})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "CHF", e.Currency)
}

func (s *ServiceTestSuite) TestCreateZeroDateDefaultsToNow() {
	before := time.Now().Add(-time.Minute)
	e, err := s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{PriceCents: 100})
	require.NoError(s.T(), err)
	assert.True(s.T(), e.InvoiceDateTime.After(before))
}

func (s *ServiceTestSuite) TestCreateRejectsNonPositivePrice() {
	_, err := s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{PriceCents: 0})
	assert.ErrorIs(s.T(), err, core.ErrInvalidAmount)
}

func (s *ServiceTestSuite) TestCreateResolvesGlobalCategory() {
	_, err := s.repo.CreateCategory(s.ctx, core.Category{Name: "Travel", OwnerID: s.global.ID})
	require.NoError(s.T(), err)

	e, err := s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{
		PriceCents:    900,
		CategoryNames: []string{"Travel"},
	})
	require.NoError(s.T(), err)
	require.Len(s.T(), e.Categories, 1)
	assert.Equal(s.T(), "Travel", e.Categories[0].Name)
}

func (s *ServiceTestSuite) TestCreateUnknownCategoryFails() {
	_, err := s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{
		PriceCents:    900,
		CategoryNames: []string{"Nope"},
	})
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *ServiceTestSuite) TestGetEnforcesOwnership() {
	e, err := s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{PriceCents: 100})
	require.NoError(s.T(), err)

	other, err := s.repo.CreateUser(s.ctx, "carl", "carl@example.com", "hash", true)
	require.NoError(s.T(), err)

	_, err = s.expenses.Get(s.ctx, other.ID, e.ID)
	assert.ErrorIs(s.T(), err, core.ErrPermissionDenied)
}

func (s *ServiceTestSuite) TestUpdateKeepsCurrency() {
	e, err := s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{PriceCents: 100, Currency: "USD"})
	require.NoError(s.T(), err)

	updated, err := s.expenses.Update(s.ctx, s.user.ID, e.ID, ExpenseInput{
		PriceCents: 250,
		Note:       "corrected",
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "USD", updated.Currency)
	assert.Equal(s.T(), int64(250), updated.Price.Cents)
	assert.Equal(s.T(), "corrected", updated.Note)
}

func (s *ServiceTestSuite) TestDeletePublishesEvent() {
	e, err := s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{PriceCents: 100})
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.expenses.Delete(s.ctx, s.user.ID, e.ID))

	_, err = s.expenses.Get(s.ctx, s.user.ID, e.ID)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)

	require.Len(s.T(), s.publisher.messages, 2)
	assert.Equal(s.T(), amqp.EventExpenseCreated, s.publisher.messages[0].Event)
	assert.Equal(s.T(), amqp.EventExpenseDeleted, s.publisher.messages[1].Event)
}

func (s *ServiceTestSuite) TestMonthlySummary() {
	jan := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	_, err := s.categories.Create(s.ctx, s.user.ID, "Groceries")
	require.NoError(s.T(), err)

	_, err = s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{
		InvoiceDateTime: jan, PriceCents: 1000, CategoryNames: []string{"Groceries"},
	})
	require.NoError(s.T(), err)
	_, err = s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{
		InvoiceDateTime: jan.AddDate(0, 0, 5), PriceCents: 500,
	})
	require.NoError(s.T(), err)
	_, err = s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{
		InvoiceDateTime: feb, PriceCents: 700,
	})
	require.NoError(s.T(), err)

	groups, total, err := s.expenses.MonthlySummary(s.ctx, s.user.ID, 10, 0)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, total)
	require.Len(s.T(), groups, 2)

	// Most recent month first.
	assert.Equal(s.T(), time.February, groups[0].Month)
	assert.Equal(s.T(), int64(700), groups[0].TotalSpent.Cents)
	assert.Empty(s.T(), groups[0].Categories)

	assert.Equal(s.T(), time.January, groups[1].Month)
	assert.Equal(s.T(), int64(1500), groups[1].TotalSpent.Cents)
	assert.Equal(s.T(), []string{"Groceries"}, groups[1].Categories)
}

func (s *ServiceTestSuite) TestMonthlySummaryCacheInvalidation() {
	jan := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	_, err := s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{InvoiceDateTime: jan, PriceCents: 1000})
	require.NoError(s.T(), err)

	groups, _, err := s.expenses.MonthlySummary(s.ctx, s.user.ID, 10, 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), groups, 1)
	assert.Equal(s.T(), int64(1000), groups[0].TotalSpent.Cents)

	// A mutation after the summary was cached must be visible immediately.
	_, err = s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{InvoiceDateTime: jan, PriceCents: 500})
	require.NoError(s.T(), err)

	groups, _, err = s.expenses.MonthlySummary(s.ctx, s.user.ID, 10, 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), groups, 1)
	assert.Equal(s.T(), int64(1500), groups[0].TotalSpent.Cents)
}

func (s *ServiceTestSuite) TestMonthlySummaryPagination() {
	for m := 1; m <= 3; m++ {
		when := time.Date(2025, time.Month(m), 5, 0, 0, 0, 0, time.UTC)
		_, err := s.expenses.Create(s.ctx, s.user.ID, ExpenseInput{InvoiceDateTime: when, PriceCents: 100})
		require.NoError(s.T(), err)
	}

	groups, total, err := s.expenses.MonthlySummary(s.ctx, s.user.ID, 2, 2)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 3, total)
	require.Len(s.T(), groups, 1)
	assert.Equal(s.T(), time.January, groups[0].Month)

	groups, _, err = s.expenses.MonthlySummary(s.ctx, s.user.ID, 2, 10)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), groups)
}

func (s *ServiceTestSuite) TestCategoryGlobalReadOnly() {
	g, err := s.repo.CreateCategory(s.ctx, core.Category{Name: "Shared", OwnerID: s.global.ID})
	require.NoError(s.T(), err)

	// Readable by everyone.
	got, err := s.categories.Get(s.ctx, s.user.ID, g.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Shared", got.Name)

	// But not mutable.
	_, err = s.categories.Update(s.ctx, s.user.ID, g.ID, "Renamed")
	assert.ErrorIs(s.T(), err, core.ErrPermissionDenied)
	err = s.categories.Delete(s.ctx, s.user.ID, g.ID)
	assert.ErrorIs(s.T(), err, core.ErrPermissionDenied)
}

func (s *ServiceTestSuite) TestCategoryDuplicateAgainstGlobalSet() {
	_, err := s.repo.CreateCategory(s.ctx, core.Category{Name: "Shared", OwnerID: s.global.ID})
	require.NoError(s.T(), err)

	_, err = s.categories.Create(s.ctx, s.user.ID, "Shared")
	assert.ErrorIs(s.T(), err, core.ErrDuplicate)
}

func (s *ServiceTestSuite) TestCategoryListVisible() {
	_, err := s.repo.CreateCategory(s.ctx, core.Category{Name: "Shared", OwnerID: s.global.ID})
	require.NoError(s.T(), err)
	_, err = s.categories.Create(s.ctx, s.user.ID, "Own")
	require.NoError(s.T(), err)

	other, err := s.repo.CreateUser(s.ctx, "carl", "carl@example.com", "hash", true)
	require.NoError(s.T(), err)
	_, err = s.categories.Create(s.ctx, other.ID, "Private")
	require.NoError(s.T(), err)

	visible, err := s.categories.ListVisible(s.ctx, s.user.ID)
	require.NoError(s.T(), err)
	names := make([]string, 0, len(visible))
	for _, c := range visible {
		names = append(names, c.Name)
	}
	assert.Equal(s.T(), []string{"Own", "Shared"}, names)
}
