package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"billova/internal/core"
	"billova/internal/storage"
)

// CategoryService manages user categories plus the shared global set.
type CategoryService struct {
	storage       *storage.SQLiteRepository
	globalOwnerID int64
}

func NewCategoryService(storage *storage.SQLiteRepository, globalOwnerID int64) *CategoryService {
	return &CategoryService{storage: storage, globalOwnerID: globalOwnerID}
}

// ListVisible returns the union of the caller's own categories and the
// global account's, alphabetical by name.
func (s *CategoryService) ListVisible(ctx context.Context, ownerID int64) ([]core.Category, error) {
	return s.storage.ListCategories(ctx, ownerID, s.globalOwnerID)
}

// Create inserts a category owned by the caller. A category with the same
// name held by either the caller or the global account counts as a
// duplicate; the storage constraint decides for the caller's own rows, the
// global set is checked explicitly.
func (s *CategoryService) Create(ctx context.Context, ownerID int64, name string) (*core.Category, error) {
	c := core.Category{Name: strings.TrimSpace(name), OwnerID: ownerID}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.storage.GetCategoryByName(ctx, s.globalOwnerID, c.Name); err == nil {
		return nil, fmt.Errorf("category %q: %w", c.Name, core.ErrDuplicate)
	}

	created, err := s.storage.CreateCategory(ctx, c)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Category created", "category_id", created.ID, "owner_id", ownerID, "name", created.Name)
	return created, nil
}

// Get returns a category the caller may read: their own or a global one.
func (s *CategoryService) Get(ctx context.Context, ownerID, id int64) (*core.Category, error) {
	c, err := s.storage.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID && c.OwnerID != s.globalOwnerID {
		slog.WarnContext(ctx, "Permission denied on category",
			"category_id", id, "owner_id", c.OwnerID, "caller_id", ownerID)
		return nil, core.ErrPermissionDenied
	}
	return c, nil
}

// Update renames a category. Only the owner may mutate; global categories
// are read-only to ordinary callers.
func (s *CategoryService) Update(ctx context.Context, ownerID, id int64, name string) (*core.Category, error) {
	c, err := s.storage.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		slog.WarnContext(ctx, "Permission denied on category",
			"category_id", id, "owner_id", c.OwnerID, "caller_id", ownerID)
		return nil, core.ErrPermissionDenied
	}

	c.Name = strings.TrimSpace(name)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.storage.UpdateCategory(ctx, *c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CategoryService) Delete(ctx context.Context, ownerID, id int64) error {
	c, err := s.storage.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if c.OwnerID != ownerID {
		slog.WarnContext(ctx, "Permission denied on category",
			"category_id", id, "owner_id", c.OwnerID, "caller_id", ownerID)
		return core.ErrPermissionDenied
	}
	return s.storage.DeleteCategory(ctx, id)
}
