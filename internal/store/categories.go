package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

func CreateCategory(ctx context.Context, db sqlx.ExtContext, name string) (*models.Category, error) {
	category := &models.Category{}

	err := sqlx.GetContext(ctx, db, category,
		`INSERT INTO categories (name, created_at) VALUES ($1, NOW())
		 RETURNING id, name, created_at`, name)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	category.Subcategories = []models.Subcategory{}
	return category, nil
}

func CreateSubcategory(ctx context.Context, db sqlx.ExtContext, categoryID int64, name string) (*models.Subcategory, error) {
	sub := &models.Subcategory{}

	err := sqlx.GetContext(ctx, db, sub,
		`INSERT INTO subcategories (category_id, name, created_at) VALUES ($1, $2, NOW())
		 RETURNING id, category_id, name, created_at`, categoryID, name)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("create subcategory: %w", err)
	}

	return sub, nil
}

// ListCategories returns every category with its subcategories attached.
func ListCategories(ctx context.Context, db sqlx.QueryerContext) ([]models.Category, error) {
	categories := []models.Category{}
	if err := sqlx.SelectContext(ctx, db, &categories,
		`SELECT id, name, created_at FROM categories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	var subs []models.Subcategory
	if err := sqlx.SelectContext(ctx, db, &subs,
		`SELECT id, category_id, name, created_at FROM subcategories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}

	byCategory := make(map[int64][]models.Subcategory)
	for _, s := range subs {
		byCategory[s.CategoryID] = append(byCategory[s.CategoryID], s)
	}

	for i := range categories {
		categories[i].Subcategories = byCategory[categories[i].ID]
		if categories[i].Subcategories == nil {
			categories[i].Subcategories = []models.Subcategory{}
		}
	}

	return categories, nil
}
