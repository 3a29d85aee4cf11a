// Package storage persists the domain model in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"billova/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// mapErr translates driver errors into domain sentinel errors.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return core.ErrNotFound
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return core.ErrDuplicate
	default:
		return err
	}
}

// monthKey truncates a stored timestamp to its "YYYY-MM" prefix. The driver
// stores timestamps as ISO 8601 text, so the prefix is the calendar month.
const monthKey = "substr(invoice_date_time, 1, 7)"

// ---- users ----

func (r *SQLiteRepository) CreateUser(ctx context.Context, username, email, passwordHash string, active bool) (*core.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, is_active) VALUES (?, ?, ?, ?)`,
		username, email, passwordHash, active)
	if err != nil {
		return nil, mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	// Every user gets exactly one settings row, created alongside the account.
	s := core.DefaultSettings(id)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_settings (owner_id, currency, language, timezone, numeric_format) VALUES (?, ?, ?, ?, ?)`,
		s.OwnerID, s.Currency, s.Language, s.Timezone, string(s.NumericFormat)); err != nil {
		return nil, fmt.Errorf("create default settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", id, "username", username, "active", active)
	return r.GetUserByID(ctx, id)
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (*core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, is_active, created_at FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, is_active, created_at FROM users WHERE username = ?`, username))
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, is_active, created_at FROM users WHERE email = ?`, email))
}

func (r *SQLiteRepository) UpdateUserEmail(ctx context.Context, id int64, email string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, email, id)
	return mapErr(err)
}

// DeleteUser removes the user row; owned settings, categories, expenses and
// sessions go with it via ON DELETE CASCADE.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	slog.InfoContext(ctx, "User deleted", "user_id", id)
	return nil
}

// ---- user settings ----

func (r *SQLiteRepository) GetSettingsByOwner(ctx context.Context, ownerID int64) (*core.UserSettings, error) {
	var s core.UserSettings
	var format string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, currency, language, timezone, numeric_format, profile_picture
		 FROM user_settings WHERE owner_id = ?`, ownerID).
		Scan(&s.ID, &s.OwnerID, &s.Currency, &s.Language, &s.Timezone, &format, &s.ProfilePicture)
	if err != nil {
		return nil, mapErr(err)
	}
	s.NumericFormat = core.NumericFormat(format)
	return &s, nil
}

func (r *SQLiteRepository) UpdateSettings(ctx context.Context, s core.UserSettings) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_settings SET currency = ?, language = ?, timezone = ?, numeric_format = ? WHERE owner_id = ?`,
		s.Currency, s.Language, s.Timezone, string(s.NumericFormat), s.OwnerID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) UpdateProfilePicture(ctx context.Context, ownerID int64, path string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_settings SET profile_picture = ? WHERE owner_id = ?`, path, ownerID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ---- categories ----

// ListCategories returns the categories of all given owners, alphabetical
// by name.
func (r *SQLiteRepository) ListCategories(ctx context.Context, ownerIDs ...int64) ([]core.Category, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ownerIDs)), ",")
	args := make([]any, len(ownerIDs))
	for i, id := range ownerIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, owner_id FROM categories WHERE owner_id IN (`+placeholders+`) ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.OwnerID); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (*core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.OwnerID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *SQLiteRepository) GetCategoryByName(ctx context.Context, ownerID int64, name string) (*core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id FROM categories WHERE owner_id = ? AND name = ?`, ownerID, name).
		Scan(&c.ID, &c.Name, &c.OwnerID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// CreateCategory inserts a category. The UNIQUE(owner_id, name) constraint
// is the single source of truth for duplicates and surfaces as
// core.ErrDuplicate.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (*core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, owner_id) VALUES (?, ?)`, c.Name, c.OwnerID)
	if err != nil {
		return nil, mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return &c, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ? WHERE id = ?`, c.Name, c.ID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ---- expenses ----

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense, categoryIDs []int64) (*core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := insertExpense(ctx, tx, e, categoryIDs)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"expense_id", id,
		"owner_id", e.OwnerID,
		"price_cents", e.Price.Cents,
		"currency", e.Currency)

	return r.GetExpense(ctx, id)
}

func insertExpense(ctx context.Context, tx *sql.Tx, e core.Expense, categoryIDs []int64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (invoice_date_time, price_cents, currency, note, invoice_issuer, invoice_as_text, owner_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.InvoiceDateTime.UTC().Format(time.RFC3339Nano),
		e.Price.Cents, e.Currency, e.Note, e.InvoiceIssuer, e.InvoiceAsText, e.OwnerID)
	if err != nil {
		return 0, mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	for _, cid := range categoryIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO expense_categories (expense_id, category_id) VALUES (?, ?)`, id, cid); err != nil {
			return 0, fmt.Errorf("link category %d: %w", cid, err)
		}
	}
	return id, nil
}

// CreateScannedExpense persists an OCR-derived expense and tags it with the
// shared category, creating that category lazily under the global account.
// Everything happens in one transaction so a failure leaves no partial rows.
func (r *SQLiteRepository) CreateScannedExpense(ctx context.Context, e core.Expense, globalOwnerID int64, categoryName string) (*core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO categories (name, owner_id) VALUES (?, ?) ON CONFLICT (owner_id, name) DO NOTHING`,
		categoryName, globalOwnerID); err != nil {
		return nil, fmt.Errorf("ensure shared category: %w", err)
	}

	var categoryID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM categories WHERE owner_id = ? AND name = ?`, globalOwnerID, categoryName).
		Scan(&categoryID); err != nil {
		return nil, fmt.Errorf("lookup shared category: %w", mapErr(err))
	}

	id, err := insertExpense(ctx, tx, e, []int64{categoryID})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Scanned expense saved", "expense_id", id, "owner_id", e.OwnerID)
	return r.GetExpense(ctx, id)
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (*core.Expense, error) {
	var e core.Expense
	err := r.db.QueryRowContext(ctx,
		`SELECT id, invoice_date_time, price_cents, currency, note, invoice_issuer, invoice_as_text, owner_id, created_at
		 FROM expenses WHERE id = ?`, id).
		Scan(&e.ID, &e.InvoiceDateTime, &e.Price.Cents, &e.Currency, &e.Note, &e.InvoiceIssuer, &e.InvoiceAsText, &e.OwnerID, &e.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	categories, err := r.expenseCategories(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	e.Categories = categories
	return &e, nil
}

func (r *SQLiteRepository) expenseCategories(ctx context.Context, expenseID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.owner_id
		 FROM categories c
		 JOIN expense_categories ec ON ec.category_id = c.id
		 WHERE ec.expense_id = ?
		 ORDER BY c.name`, expenseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.OwnerID); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListExpenses returns one page of the owner's expenses in chronological
// order by invoice date.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, ownerID int64, limit, offset int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, invoice_date_time, price_cents, currency, note, invoice_issuer, invoice_as_text, owner_id, created_at
		 FROM expenses WHERE owner_id = ? ORDER BY invoice_date_time LIMIT ? OFFSET ?`,
		ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var e core.Expense
		if err := rows.Scan(&e.ID, &e.InvoiceDateTime, &e.Price.Cents, &e.Currency, &e.Note, &e.InvoiceIssuer, &e.InvoiceAsText, &e.OwnerID, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range expenses {
		categories, err := r.expenseCategories(ctx, expenses[i].ID)
		if err != nil {
			return nil, err
		}
		expenses[i].Categories = categories
	}
	return expenses, nil
}

func (r *SQLiteRepository) CountExpenses(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses WHERE owner_id = ?`, ownerID).Scan(&n)
	return n, err
}

// UpdateExpense rewrites the mutable fields and replaces the category links.
// Currency is fixed at creation time and deliberately not touched.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense, categoryIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses SET invoice_date_time = ?, price_cents = ?, note = ?, invoice_issuer = ?, invoice_as_text = ?
		 WHERE id = ?`,
		e.InvoiceDateTime.UTC().Format(time.RFC3339Nano),
		e.Price.Cents, e.Note, e.InvoiceIssuer, e.InvoiceAsText, e.ID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM expense_categories WHERE expense_id = ?`, e.ID); err != nil {
		return fmt.Errorf("clear category links: %w", err)
	}
	for _, cid := range categoryIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO expense_categories (expense_id, category_id) VALUES (?, ?)`, e.ID, cid); err != nil {
			return fmt.Errorf("link category %d: %w", cid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ---- monthly aggregation ----

// MonthTotal is one month's spending sum, keyed "YYYY-MM".
type MonthTotal struct {
	Month      string
	TotalCents int64
}

// MonthlyTotals groups the owner's expenses by calendar month and sums the
// price per group, most recent month first.
func (r *SQLiteRepository) MonthlyTotals(ctx context.Context, ownerID int64) ([]MonthTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+monthKey+` AS month, SUM(price_cents)
		 FROM expenses WHERE owner_id = ?
		 GROUP BY month ORDER BY month DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []MonthTotal
	for rows.Next() {
		var t MonthTotal
		if err := rows.Scan(&t.Month, &t.TotalCents); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// MonthCategoryNames returns, per "YYYY-MM" month, the distinct category
// names used by the owner's expenses in that month.
func (r *SQLiteRepository) MonthCategoryNames(ctx context.Context, ownerID int64) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT `+monthKey+` AS month, c.name
		 FROM expenses e
		 JOIN expense_categories ec ON ec.expense_id = e.id
		 JOIN categories c ON c.id = ec.category_id
		 WHERE e.owner_id = ?`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byMonth := make(map[string][]string)
	for rows.Next() {
		var month, name string
		if err := rows.Scan(&month, &name); err != nil {
			return nil, err
		}
		byMonth[month] = append(byMonth[month], name)
	}
	return byMonth, rows.Err()
}

// ---- sessions ----

func (r *SQLiteRepository) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, expiresAt.UTC().Format(time.RFC3339Nano))
	return mapErr(err)
}

// GetSessionUser resolves a session token to its user, rejecting expired
// sessions and inactive accounts.
func (r *SQLiteRepository) GetSessionUser(ctx context.Context, token string) (*core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.username, u.email, u.password_hash, u.is_active, u.created_at
		 FROM sessions s JOIN users u ON u.id = s.user_id
		 WHERE s.token = ? AND s.expires_at > ? AND u.is_active = 1`,
		token, time.Now().UTC().Format(time.RFC3339Nano)).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return mapErr(err)
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
