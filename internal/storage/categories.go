package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/tally/internal/model"
)

// CreateCategory inserts a new category.
func (s *queries) CreateCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNotNil(category, "category"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx,
		`INSERT INTO categories (title, symbol) VALUES (?, ?)`,
		category.Title, category.Symbol)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get category ID: %w", err)
	}
	category.ID = id

	slog.Info("created new category", "title", category.Title, "id", id)
	return nil
}

// GetCategory returns a category by id.
func (s *queries) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var cat model.Category
	err := s.q.QueryRowContext(ctx,
		`SELECT id, title, symbol FROM categories WHERE id = ?`, id).
		Scan(&cat.ID, &cat.Title, &cat.Symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("category", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return &cat, nil
}

// ListCategories returns all categories ordered by title.
func (s *queries) ListCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `SELECT id, title, symbol FROM categories ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		if err := rows.Scan(&cat.ID, &cat.Title, &cat.Symbol); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "count", len(categories))
	return categories, nil
}

// UpdateCategory changes a category's title and symbol.
func (s *queries) UpdateCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNotNil(category, "category"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx,
		`UPDATE categories SET title = ?, symbol = ? WHERE id = ?`,
		category.Title, category.Symbol, category.ID)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	return expectOneRow(result, "category", category.ID)
}

// DeleteCategory removes a category. Budget links cascade.
func (s *queries) DeleteCategory(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return expectOneRow(result, "category", id)
}

// CountCategoryReferences counts transactions and templates filed under the category.
func (s *queries) CountCategoryReferences(ctx context.Context, id int64) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM transactions WHERE category_id = ?1) +
			(SELECT COUNT(*) FROM periodic_transactions WHERE category_id = ?1)`,
		id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count category references: %w", err)
	}
	return count, nil
}
