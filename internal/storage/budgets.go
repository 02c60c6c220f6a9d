package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/shopspring/decimal"
)

const budgetColumns = `b.id, b.budget_set, b.title, b.currency, b.amount, b.amount_spent,
	b.start_date, b.end_date, b.interval_unit, b.interval_length`

func scanBudget(row interface{ Scan(...any) error }) (*model.Budget, error) {
	var b model.Budget
	if err := row.Scan(&b.ID, &b.BudgetSet, &b.Title, &b.Currency, &b.Amount, &b.AmountSpent,
		scanTime(&b.StartDate), scanTime(&b.EndDate), &b.Interval, &b.IntervalLength); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *queries) queryBudgets(ctx context.Context, query string, args ...any) ([]model.Budget, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []model.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		budgets = append(budgets, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating budgets: %w", err)
	}
	return budgets, nil
}

// CreateBudget inserts a budget row. Category links are set separately.
func (s *queries) CreateBudget(ctx context.Context, budget *model.Budget) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNotNil(budget, "budget"); err != nil {
		return err
	}
	if err := validateString(budget.BudgetSet, "budgetSet"); err != nil {
		return err
	}
	if !budget.EndDate.After(budget.StartDate) {
		return ErrInvalidDateRange
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT INTO budgets (budget_set, title, currency, amount, amount_spent,
			start_date, end_date, interval_unit, interval_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		budget.BudgetSet, budget.Title, budget.Currency, budget.Amount.String(), budget.AmountSpent.String(),
		formatTime(budget.StartDate), formatTime(budget.EndDate), string(budget.Interval), budget.IntervalLength)
	if err != nil {
		return fmt.Errorf("failed to create budget: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get budget ID: %w", err)
	}
	budget.ID = id
	return nil
}

// GetBudget returns a budget by id.
func (s *queries) GetBudget(ctx context.Context, id int64) (*model.Budget, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets b WHERE b.id = ?`, id)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("budget", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query budget: %w", err)
	}
	return b, nil
}

// ListBudgets returns budgets ordered by start date.
func (s *queries) ListBudgets(ctx context.Context, filter service.BudgetFilter) ([]model.Budget, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Currency != "" {
		where = append(where, "b.currency = ?")
		args = append(args, filter.Currency)
	}
	if filter.BudgetSet != "" {
		where = append(where, "b.budget_set = ?")
		args = append(args, filter.BudgetSet)
	}
	if filter.ActiveAt != nil {
		where = append(where, "b.start_date <= ? AND b.end_date > ?")
		at := formatTime(*filter.ActiveAt)
		args = append(args, at, at)
	}

	query := `SELECT ` + budgetColumns + ` FROM budgets b`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY b.start_date, b.id"

	return s.queryBudgets(ctx, query, args...)
}

// UpdateBudget writes every budget column, including AmountSpent.
func (s *queries) UpdateBudget(ctx context.Context, budget *model.Budget) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNotNil(budget, "budget"); err != nil {
		return err
	}
	if !budget.EndDate.After(budget.StartDate) {
		return ErrInvalidDateRange
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE budgets SET title = ?, currency = ?, amount = ?, amount_spent = ?,
			start_date = ?, end_date = ?, interval_unit = ?, interval_length = ?
		WHERE id = ?`,
		budget.Title, budget.Currency, budget.Amount.String(), budget.AmountSpent.String(),
		formatTime(budget.StartDate), formatTime(budget.EndDate), string(budget.Interval), budget.IntervalLength,
		budget.ID)
	if err != nil {
		return fmt.Errorf("failed to update budget: %w", err)
	}
	return expectOneRow(result, "budget", budget.ID)
}

// DeleteBudget removes a budget and its category links.
func (s *queries) DeleteBudget(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete budget: %w", err)
	}
	return expectOneRow(result, "budget", id)
}

// AdjustBudgetSpent adds delta to a budget's spent accumulator.
func (s *queries) AdjustBudgetSpent(ctx context.Context, id int64, delta decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var spent decimal.Decimal
	err := s.q.QueryRowContext(ctx, `SELECT amount_spent FROM budgets WHERE id = ?`, id).Scan(&spent)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("budget", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read budget spent: %w", err)
	}

	return s.SetBudgetSpent(ctx, id, spent.Add(delta))
}

// SetBudgetSpent overwrites a budget's spent accumulator.
func (s *queries) SetBudgetSpent(ctx context.Context, id int64, amount decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `UPDATE budgets SET amount_spent = ? WHERE id = ?`, amount.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update budget spent: %w", err)
	}
	return expectOneRow(result, "budget", id)
}

// GetBudgetCategories returns the categories linked to a budget.
func (s *queries) GetBudgetCategories(ctx context.Context, budgetID int64) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id, c.title, c.symbol
		FROM budget_categories bc
		JOIN categories c ON c.id = bc.category_id
		WHERE bc.budget_id = ?
		ORDER BY c.title, c.id`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query budget categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		if err := rows.Scan(&cat.ID, &cat.Title, &cat.Symbol); err != nil {
			return nil, fmt.Errorf("failed to scan budget category: %w", err)
		}
		categories = append(categories, cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating budget categories: %w", err)
	}
	return categories, nil
}

// SetBudgetCategories replaces every category link of a budget.
func (s *queries) SetBudgetCategories(ctx context.Context, budgetID int64, categoryIDs []int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(budgetID, "budgetID"); err != nil {
		return err
	}

	if _, err := s.q.ExecContext(ctx, `DELETE FROM budget_categories WHERE budget_id = ?`, budgetID); err != nil {
		return fmt.Errorf("failed to clear budget categories: %w", err)
	}

	for _, categoryID := range categoryIDs {
		if _, err := s.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO budget_categories (budget_id, category_id) VALUES (?, ?)`,
			budgetID, categoryID); err != nil {
			return fmt.Errorf("failed to link category %d to budget %d: %w", categoryID, budgetID, err)
		}
	}
	return nil
}

// GetBudgetWithCategories returns a budget joined with its categories.
func (s *queries) GetBudgetWithCategories(ctx context.Context, id int64) (*model.BudgetWithCategories, error) {
	b, err := s.GetBudget(ctx, id)
	if err != nil {
		return nil, err
	}

	categories, err := s.GetBudgetCategories(ctx, id)
	if err != nil {
		return nil, err
	}

	return &model.BudgetWithCategories{Budget: *b, Categories: categories}, nil
}

// ListBudgetsWithCategories returns filtered budgets joined with their categories.
func (s *queries) ListBudgetsWithCategories(ctx context.Context, filter service.BudgetFilter) ([]model.BudgetWithCategories, error) {
	budgets, err := s.ListBudgets(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := make([]model.BudgetWithCategories, 0, len(budgets))
	for _, b := range budgets {
		categories, err := s.GetBudgetCategories(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, model.BudgetWithCategories{Budget: b, Categories: categories})
	}
	return result, nil
}

// FindBudgetsForExpense returns budgets linked to the category whose window contains ts.
func (s *queries) FindBudgetsForExpense(ctx context.Context, categoryID int64, ts time.Time) ([]model.Budget, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	at := formatTime(ts)
	return s.queryBudgets(ctx, `
		SELECT `+budgetColumns+`
		FROM budgets b
		JOIN budget_categories bc ON bc.budget_id = b.id
		WHERE bc.category_id = ? AND b.start_date <= ? AND b.end_date > ?
		ORDER BY b.id`, categoryID, at, at)
}

// SumExpensesForBudget totals the converted amounts of matching expenses inside the budget window.
func (s *queries) SumExpensesForBudget(ctx context.Context, budgetID int64) (decimal.Decimal, error) {
	if err := validateContext(ctx); err != nil {
		return decimal.Zero, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT t.amount_converted
		FROM transactions t
		JOIN budget_categories bc ON bc.category_id = t.category_id
		JOIN budgets b ON b.id = bc.budget_id
		WHERE b.id = ? AND t.type = 'expense'
			AND t.timestamp >= b.start_date AND t.timestamp < b.end_date`, budgetID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query budget expenses: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan expense amount: %w", err)
		}
		total = total.Add(amount)
	}

	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating budget expenses: %w", err)
	}
	return total, nil
}

// LatestBudgetPerSet returns the budget with the latest end date in every budget set.
func (s *queries) LatestBudgetPerSet(ctx context.Context) ([]model.Budget, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	return s.queryBudgets(ctx, `
		SELECT `+budgetColumns+`
		FROM budgets b
		WHERE b.id = (
			SELECT b2.id FROM budgets b2
			WHERE b2.budget_set = b.budget_set
			ORDER BY b2.end_date DESC, b2.id DESC
			LIMIT 1
		)
		ORDER BY b.id`)
}
