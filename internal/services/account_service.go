package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"billova/internal/auth"
	"billova/internal/core"
	"billova/internal/i18n"
	"billova/internal/storage"
)

var (
	ErrInvalidCredentials   = errors.New("invalid login credentials")
	ErrPasswordMismatch     = errors.New("passwords do not match")
	ErrConfirmationMismatch = errors.New("confirmation does not match username")
)

// AccountService covers signup, login sessions, settings and deletion.
type AccountService struct {
	storage    *storage.SQLiteRepository
	sessionTTL time.Duration
	mediaDir   string
}

func NewAccountService(storage *storage.SQLiteRepository, sessionTTL time.Duration, mediaDir string) *AccountService {
	return &AccountService{storage: storage, sessionTTL: sessionTTL, mediaDir: mediaDir}
}

// Signup creates a user together with its settings row. Username and email
// uniqueness surface as core.ErrDuplicate from the storage constraints.
func (s *AccountService) Signup(ctx context.Context, username, email, password, passwordConfirm string) (*core.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("username, email and password are required: %w", core.ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email address: %w", core.ErrInvalidInput)
	}
	if password != passwordConfirm {
		return nil, ErrPasswordMismatch
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.storage.CreateUser(ctx, username, email, hash, true)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Signup completed", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Authenticate accepts a username or an email address in the same field,
// disambiguated by the presence of "@". Inactive accounts are rejected
// regardless of password correctness.
func (s *AccountService) Authenticate(ctx context.Context, identifier, password string) (*core.User, error) {
	identifier = strings.TrimSpace(identifier)

	var user *core.User
	var err error
	if strings.Contains(identifier, "@") {
		user, err = s.storage.GetUserByEmail(ctx, identifier)
	} else {
		user, err = s.storage.GetUserByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		slog.WarnContext(ctx, "Login rejected for inactive account", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// StartSession issues a session token for the user.
func (s *AccountService) StartSession(ctx context.Context, userID int64) (string, time.Time, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := time.Now().Add(s.sessionTTL)
	if err := s.storage.CreateSession(ctx, token, userID, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("create session: %w", err)
	}
	return token, expiresAt, nil
}

// EndSession invalidates a session token.
func (s *AccountService) EndSession(ctx context.Context, token string) error {
	return s.storage.DeleteSession(ctx, token)
}

// UserByToken resolves a session token to an active user.
func (s *AccountService) UserByToken(ctx context.Context, token string) (*core.User, error) {
	return s.storage.GetSessionUser(ctx, token)
}

// SessionTTL returns the configured session lifetime.
func (s *AccountService) SessionTTL() time.Duration {
	return s.sessionTTL
}

func (s *AccountService) Settings(ctx context.Context, ownerID int64) (*core.UserSettings, error) {
	return s.storage.GetSettingsByOwner(ctx, ownerID)
}

// UpdateSettings replaces the caller's preferences. Changing the currency
// affects only future expenses: stored expenses keep the currency resolved
// when they were created.
func (s *AccountService) UpdateSettings(ctx context.Context, ownerID int64, in core.UserSettings) (*core.UserSettings, error) {
	in.OwnerID = ownerID
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidInput, err)
	}
	if !i18n.KnownCurrency(in.Currency) {
		return nil, fmt.Errorf("%w: unknown currency %q", core.ErrInvalidInput, in.Currency)
	}
	if err := s.storage.UpdateSettings(ctx, in); err != nil {
		return nil, err
	}
	return s.storage.GetSettingsByOwner(ctx, ownerID)
}

// UpdateEmail changes the account email; duplicates surface as
// core.ErrDuplicate.
func (s *AccountService) UpdateEmail(ctx context.Context, ownerID int64, email string) error {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %w", core.ErrInvalidInput)
	}
	return s.storage.UpdateUserEmail(ctx, ownerID, email)
}

// SaveProfilePicture stores the uploaded image under the media directory
// and records its relative path in the settings row.
func (s *AccountService) SaveProfilePicture(ctx context.Context, ownerID int64, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty upload: %w", core.ErrInvalidInput)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png":
	default:
		return "", fmt.Errorf("unsupported image type %q: %w", ext, core.ErrInvalidInput)
	}

	dir := filepath.Join(s.mediaDir, "profile_pics")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create media directory: %w", err)
	}

	relPath := filepath.Join("profile_pics", fmt.Sprintf("user_%d%s", ownerID, ext))
	if err := os.WriteFile(filepath.Join(s.mediaDir, relPath), data, 0644); err != nil {
		return "", fmt.Errorf("write profile picture: %w", err)
	}

	if err := s.storage.UpdateProfilePicture(ctx, ownerID, relPath); err != nil {
		return "", err
	}
	return relPath, nil
}

// DeleteAccount destroys the user and, via cascade, every owned expense,
// category, settings row and session. The caller must re-type their own
// username as confirmation.
func (s *AccountService) DeleteAccount(ctx context.Context, user *core.User, confirmation string) error {
	if confirmation != user.Username {
		slog.WarnContext(ctx, "Account deletion rejected: confirmation mismatch", "user_id", user.ID)
		return ErrConfirmationMismatch
	}
	return s.storage.DeleteUser(ctx, user.ID)
}
