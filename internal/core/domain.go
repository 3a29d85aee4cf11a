package core

import (
	"errors"
	"strings"
	"time"
)

const (
	FormatAustrian NumericFormat = "AT"
	FormatGerman   NumericFormat = "DE"
	FormatSwiss    NumericFormat = "CH"
	FormatAmerican NumericFormat = "US"
	FormatBritish  NumericFormat = "UK"
)

const (
	DefaultCurrency      = "EUR"
	DefaultLanguage      = "en"
	DefaultTimezone      = "Europe/Vienna"
	DefaultNumericFormat = FormatAustrian

	// GeneratedCategoryName is attached to expenses created from OCR scans.
	// The category lives under the global account and is shared by all users.
	GeneratedCategoryName = "Generated"
)

type (
	NumericFormat string

	Money struct {
		Cents int64
	}

	User struct {
		ID           int64
		Username     string
		Email        string
		PasswordHash string
		IsActive     bool
		CreatedAt    time.Time
	}

	// UserSettings holds per-user display preferences. Exactly one row
	// exists per user, created together with the user.
	UserSettings struct {
		ID             int64
		OwnerID        int64
		Currency       string
		Language       string
		Timezone       string
		NumericFormat  NumericFormat
		ProfilePicture string
	}

	Category struct {
		ID      int64
		Name    string
		OwnerID int64
	}

	Expense struct {
		ID              int64
		InvoiceDateTime time.Time
		Price           Money
		Currency        string
		Note            string
		InvoiceIssuer   string
		InvoiceAsText   string
		Categories      []Category
		OwnerID         int64
		CreatedAt       time.Time
	}
)

// Languages supported for the UI, mirroring the settings choice list.
var Languages = []string{"en", "de", "fr", "it", "es"}

// NumericFormats lists the accepted regional number conventions.
var NumericFormats = []NumericFormat{
	FormatAustrian, FormatGerman, FormatSwiss, FormatAmerican, FormatBritish,
}

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyName        = errors.New("name must not be empty")
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("already exists")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
)

func (f NumericFormat) Valid() bool {
	switch f {
	case FormatAustrian, FormatGerman, FormatSwiss, FormatAmerican, FormatBritish:
		return true
	}
	return false
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidCurrency reports whether code looks like an ISO 4217 alpha code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 255 {
		return errors.New("name too long (max 255 characters)")
	}
	return nil
}

func (e Expense) Validate() error {
	if e.InvoiceDateTime.IsZero() {
		return ErrInvalidDate
	}
	if err := e.Price.Validate(); err != nil {
		return err
	}
	if e.Currency != "" && !ValidCurrency(e.Currency) {
		return ErrInvalidCurrency
	}
	if e.OwnerID == 0 {
		return errors.New("expense requires an owner")
	}
	return nil
}

func (s UserSettings) Validate() error {
	if !ValidCurrency(s.Currency) {
		return ErrInvalidCurrency
	}
	if len(s.Language) != 2 {
		return errors.New("language must be a 2-letter code")
	}
	if !s.NumericFormat.Valid() {
		return errors.New("unknown numeric format")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return errors.New("unknown timezone")
	}
	return nil
}

// DefaultSettings returns the settings every new account starts with.
func DefaultSettings(ownerID int64) UserSettings {
	return UserSettings{
		OwnerID:       ownerID,
		Currency:      DefaultCurrency,
		Language:      DefaultLanguage,
		Timezone:      DefaultTimezone,
		NumericFormat: DefaultNumericFormat,
	}
}
