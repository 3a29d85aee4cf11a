package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"billova/internal/core"
	"billova/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type AccountServiceTestSuite struct {
	suite.Suite
	repo     *storage.SQLiteRepository
	accounts *AccountService
	ctx      context.Context
}

func TestAccountServiceSuite(t *testing.T) {
	suite.Run(t, new(AccountServiceTestSuite))
}

func (s *AccountServiceTestSuite) SetupTest() {
	repo, err := storage.NewSQLiteRepository(filepath.Join(s.T().TempDir(), "test.db"))
	require.NoError(s.T(), err, "failed to create test database")
	s.repo = repo
	s.accounts = NewAccountService(repo, time.Hour, s.T().TempDir())
	s.ctx = context.Background()
}

func (s *AccountServiceTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *AccountServiceTestSuite) signup(username string) *core.User {
	u, err := s.accounts.Signup(s.ctx, username, username+"@example.com", "s3cret!pw", "s3cret!pw")
	require.NoError(s.T(), err)
	return u
}

func (s *AccountServiceTestSuite) TestSignupAndLogin() {
	u := s.signup("anna")
	assert.NotEmpty(s.T(), u.PasswordHash)
	assert.NotEqual(s.T(), "s3cret!pw", u.PasswordHash)

	got, err := s.accounts.Authenticate(s.ctx, "anna", "s3cret!pw")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), u.ID, got.ID)

	// Email works in the same field.
	got, err = s.accounts.Authenticate(s.ctx, "anna@example.com", "s3cret!pw")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), u.ID, got.ID)
}

func (s *AccountServiceTestSuite) TestSignupValidation() {
	_, err := s.accounts.Signup(s.ctx, "", "a@example.com", "pw", "pw")
	assert.ErrorIs(s.T(), err, core.ErrInvalidInput)

	_, err = s.accounts.Signup(s.ctx, "anna", "not-an-email", "pw", "pw")
	assert.ErrorIs(s.T(), err, core.ErrInvalidInput)

	_, err = s.accounts.Signup(s.ctx, "anna", "a@example.com", "pw", "other")
	assert.ErrorIs(s.T(), err, ErrPasswordMismatch)
}

func (s *AccountServiceTestSuite) TestSignupDuplicate() {
	s.signup("anna")

	_, err := s.accounts.Signup(s.ctx, "anna", "other@example.com", "pw123456", "pw123456")
	assert.ErrorIs(s.T(), err, core.ErrDuplicate)
}

func (s *AccountServiceTestSuite) TestAuthenticateFailures() {
	s.signup("anna")

	_, err := s.accounts.Authenticate(s.ctx, "anna", "wrong")
	assert.ErrorIs(s.T(), err, ErrInvalidCredentials)

	_, err = s.accounts.Authenticate(s.ctx, "nobody", "s3cret!pw")
	assert.ErrorIs(s.T(), err, ErrInvalidCredentials)
}

func (s *AccountServiceTestSuite) TestSessionRoundTrip() {
	u := s.signup("anna")

	token, expiresAt, err := s.accounts.StartSession(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Len(s.T(), token, 64)
	assert.True(s.T(), expiresAt.After(time.Now()))

	got, err := s.accounts.UserByToken(s.ctx, token)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), u.ID, got.ID)

	require.NoError(s.T(), s.accounts.EndSession(s.ctx, token))
	_, err = s.accounts.UserByToken(s.ctx, token)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *AccountServiceTestSuite) TestUpdateSettings() {
	u := s.signup("anna")

	updated, err := s.accounts.UpdateSettings(s.ctx, u.ID, core.UserSettings{
		Currency:      "USD",
		Language:      "de",
		Timezone:      "Europe/Berlin",
		NumericFormat: core.FormatGerman,
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "USD", updated.Currency)
	assert.Equal(s.T(), core.FormatGerman, updated.NumericFormat)

	_, err = s.accounts.UpdateSettings(s.ctx, u.ID, core.UserSettings{
		Currency:      "XQZ",
		Language:      "en",
		Timezone:      "UTC",
		NumericFormat: core.FormatAustrian,
	})
	assert.ErrorIs(s.T(), err, core.ErrInvalidInput)
}

func (s *AccountServiceTestSuite) TestDeleteAccountNeedsConfirmation() {
	u := s.signup("anna")

	err := s.accounts.DeleteAccount(s.ctx, u, "Anna")
	assert.ErrorIs(s.T(), err, ErrConfirmationMismatch)

	require.NoError(s.T(), s.accounts.DeleteAccount(s.ctx, u, "anna"))
	_, err = s.repo.GetUserByID(s.ctx, u.ID)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}
