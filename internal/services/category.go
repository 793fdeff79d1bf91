package services

import (
	"context"
	"fmt"
	"strings"

	"kharcha/internal/core"
	"kharcha/internal/log"
	"kharcha/internal/store"
)

type CategoryService struct {
	store  store.Store
	obs    Observer
	logger *log.Logger
}

func NewCategoryService(s store.Store, obs Observer, logger *log.Logger) *CategoryService {
	return &CategoryService{store: s, obs: obs, logger: logger.WithComponent("categories")}
}

func (s *CategoryService) storeError(op string) {
	if s.obs != nil {
		s.obs.StoreError(op)
	}
}

func (s *CategoryService) Create(ctx context.Context, owner, name string) (core.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, core.ErrEmptyInput
	}
	created, err := s.store.InsertCategory(ctx, core.Category{Owner: owner, Name: name})
	if err != nil {
		s.storeError("insert_category")
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return created, nil
}

func (s *CategoryService) List(ctx context.Context, owner string) ([]core.Category, error) {
	list, err := s.store.ListCategories(ctx, owner)
	if err != nil {
		s.storeError("list_categories")
	}
	return list, err
}

// Delete removes a category after reassigning the expenses that reference it
// to the owner's "Other" category. Without one, the expenses become
// uncategorized rather than orphaned references.
func (s *CategoryService) Delete(ctx context.Context, owner, id string) error {
	categories, err := s.store.ListCategories(ctx, owner)
	if err != nil {
		s.storeError("list_categories")
		return fmt.Errorf("list categories: %w", err)
	}

	var target string
	found := false
	for _, c := range categories {
		if c.ID == id {
			found = true
		}
		if c.ID != id && strings.EqualFold(c.Name, "Other") {
			target = c.ID
		}
	}
	if !found {
		return store.ErrNotFound
	}

	if err := s.store.ReassignCategory(ctx, owner, id, target); err != nil {
		s.storeError("reassign_category")
		return fmt.Errorf("reassign expenses: %w", err)
	}
	if err := s.store.DeleteCategory(ctx, owner, id); err != nil {
		s.storeError("delete_category")
		return fmt.Errorf("delete category: %w", err)
	}
	if target == "" {
		s.logger.InfoContext(ctx, "category deleted without fallback, expenses uncategorized", "category_id", id)
	}
	return nil
}
