package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, title, currency, balance, color, sort_order, created_at`

func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	if err := row.Scan(&a.ID, &a.Title, &a.Currency, &a.Balance, &a.Color, &a.SortOrder, scanTime(&a.CreatedAt)); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts a new account. A non-zero ID is kept as the row id.
func (s *queries) CreateAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNotNil(account, "account"); err != nil {
		return err
	}

	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	var id any
	if account.ID > 0 {
		id = account.ID
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT INTO accounts (id, title, currency, balance, color, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, account.Title, account.Currency, account.Balance.String(),
		account.Color, account.SortOrder, formatTime(account.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	newID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get account ID: %w", err)
	}
	account.ID = newID

	slog.Debug("created account", "id", newID, "currency", account.Currency)
	return nil
}

// GetAccount returns the account with the given id.
func (s *queries) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("account", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return account, nil
}

// ListAccounts returns accounts in display order.
func (s *queries) ListAccounts(ctx context.Context, filter service.AccountFilter) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Currency != "" {
		where = append(where, "currency = ?")
		args = append(args, filter.Currency)
	}
	if filter.ExcludeID > 0 {
		where = append(where, "id != ?")
		args = append(args, filter.ExcludeID)
	}

	query := `SELECT ` + accountColumns + ` FROM accounts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sort_order, id"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccount changes the descriptive fields. The balance is only moved by AdjustAccountBalance.
func (s *queries) UpdateAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNotNil(account, "account"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE accounts SET title = ?, currency = ?, color = ?, sort_order = ?
		WHERE id = ?`,
		account.Title, account.Currency, account.Color, account.SortOrder, account.ID)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return expectOneRow(result, "account", account.ID)
}

// DeleteAccount removes an account row.
func (s *queries) DeleteAccount(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return expectOneRow(result, "account", id)
}

// AdjustAccountBalance adds delta to the stored balance.
func (s *queries) AdjustAccountBalance(ctx context.Context, id int64, delta decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var balance decimal.Decimal
	err := s.q.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("account", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read account balance: %w", err)
	}

	if _, err := s.q.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`,
		balance.Add(delta).String(), id); err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	return nil
}

// CountAccountReferences counts transactions and templates that point at the account.
func (s *queries) CountAccountReferences(ctx context.Context, id int64) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM transactions WHERE sender_account_id = ?1 OR recipient_account_id = ?1) +
			(SELECT COUNT(*) FROM periodic_transactions WHERE sender_account_id = ?1 OR recipient_account_id = ?1)`,
		id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count account references: %w", err)
	}
	return count, nil
}

// SumAccountBalances totals every account balance except excludeID.
// Balances in different currencies are added as-is.
func (s *queries) SumAccountBalances(ctx context.Context, excludeID int64) (decimal.Decimal, error) {
	if err := validateContext(ctx); err != nil {
		return decimal.Zero, err
	}

	rows, err := s.q.QueryContext(ctx, `SELECT balance FROM accounts WHERE id != ?`, excludeID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var balance decimal.Decimal
		if err := rows.Scan(&balance); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan balance: %w", err)
		}
		total = total.Add(balance)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating balances: %w", err)
	}
	return total, nil
}
