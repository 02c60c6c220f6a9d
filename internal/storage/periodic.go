package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/tally/internal/model"
)

const periodicColumns = `t.id, t.type, t.title, t.amount, t.sender_account_id, t.recipient_account_id,
	t.currency, t.category_id, t.next_transaction, t.interval_unit, t.interval_length`

func periodicDest(p *model.PeriodicTransaction, recipient *sql.NullInt64) []any {
	return []any{&p.ID, &p.Type, &p.Title, &p.Amount, &p.SenderAccountID, recipient,
		&p.Currency, &p.CategoryID, scanTime(&p.NextTransaction), &p.Interval, &p.IntervalLength}
}

func scanPeriodic(row interface{ Scan(...any) error }) (*model.PeriodicTransaction, error) {
	var (
		p         model.PeriodicTransaction
		recipient sql.NullInt64
	)
	if err := row.Scan(periodicDest(&p, &recipient)...); err != nil {
		return nil, err
	}
	p.RecipientAccountID = idFromNull(recipient)
	return &p, nil
}

func scanPeriodicExpanded(row interface{ Scan(...any) error }) (*model.PeriodicTransactionExpanded, error) {
	var (
		exp       model.PeriodicTransactionExpanded
		recipient sql.NullInt64
		related   relatedRow
	)

	dest := append(periodicDest(&exp.PeriodicTransaction, &recipient), related.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	exp.RecipientAccountID = idFromNull(recipient)
	exp.Sender = related.sender
	exp.Category = related.category

	account, err := related.recipient()
	if err != nil {
		return nil, err
	}
	exp.Recipient = account
	return &exp, nil
}

func (s *queries) queryPeriodic(ctx context.Context, query string, args ...any) ([]model.PeriodicTransaction, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query periodic transactions: %w", err)
	}
	defer rows.Close()

	var result []model.PeriodicTransaction
	for rows.Next() {
		p, err := scanPeriodic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan periodic transaction: %w", err)
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating periodic transactions: %w", err)
	}
	return result, nil
}

// CreatePeriodic inserts a periodic transaction template.
func (s *queries) CreatePeriodic(ctx context.Context, p *model.PeriodicTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNotNil(p, "periodic"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT INTO periodic_transactions (type, title, amount, sender_account_id, recipient_account_id,
			currency, category_id, next_transaction, interval_unit, interval_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.Type), p.Title, p.Amount.String(), p.SenderAccountID, nullableID(p.RecipientAccountID),
		p.Currency, p.CategoryID, formatTime(p.NextTransaction), string(p.Interval), p.IntervalLength)
	if err != nil {
		return fmt.Errorf("failed to create periodic transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get periodic transaction ID: %w", err)
	}
	p.ID = id
	return nil
}

// GetPeriodic returns a template by id.
func (s *queries) GetPeriodic(ctx context.Context, id int64) (*model.PeriodicTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx, `SELECT `+periodicColumns+` FROM periodic_transactions t WHERE t.id = ?`, id)
	p, err := scanPeriodic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("periodic transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query periodic transaction: %w", err)
	}
	return p, nil
}

// UpdatePeriodic overwrites a template.
func (s *queries) UpdatePeriodic(ctx context.Context, p *model.PeriodicTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNotNil(p, "periodic"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE periodic_transactions SET type = ?, title = ?, amount = ?, sender_account_id = ?,
			recipient_account_id = ?, currency = ?, category_id = ?, next_transaction = ?,
			interval_unit = ?, interval_length = ?
		WHERE id = ?`,
		string(p.Type), p.Title, p.Amount.String(), p.SenderAccountID, nullableID(p.RecipientAccountID),
		p.Currency, p.CategoryID, formatTime(p.NextTransaction), string(p.Interval), p.IntervalLength, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update periodic transaction: %w", err)
	}
	return expectOneRow(result, "periodic transaction", p.ID)
}

// DeletePeriodic removes a template.
func (s *queries) DeletePeriodic(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM periodic_transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete periodic transaction: %w", err)
	}
	return expectOneRow(result, "periodic transaction", id)
}

// ListPeriodic returns every template ordered by due date.
func (s *queries) ListPeriodic(ctx context.Context) ([]model.PeriodicTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryPeriodic(ctx,
		`SELECT `+periodicColumns+` FROM periodic_transactions t ORDER BY t.next_transaction, t.id`)
}

// ListDuePeriodic returns templates whose due date is at or before now.
func (s *queries) ListDuePeriodic(ctx context.Context, now time.Time) ([]model.PeriodicTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryPeriodic(ctx, `
		SELECT `+periodicColumns+` FROM periodic_transactions t
		WHERE t.next_transaction <= ?
		ORDER BY t.next_transaction, t.id`, formatTime(now))
}

// GetPeriodicExpanded returns a template joined with its accounts and category.
func (s *queries) GetPeriodicExpanded(ctx context.Context, id int64) (*model.PeriodicTransactionExpanded, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+periodicColumns+expandedColumns+` FROM periodic_transactions t`+expandedJoins+` WHERE t.id = ?`, id)
	exp, err := scanPeriodicExpanded(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("periodic transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query periodic transaction: %w", err)
	}
	return exp, nil
}

// ListPeriodicExpanded returns every template joined with its accounts and category.
func (s *queries) ListPeriodicExpanded(ctx context.Context) ([]model.PeriodicTransactionExpanded, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+periodicColumns+expandedColumns+` FROM periodic_transactions t`+expandedJoins+
			` ORDER BY t.next_transaction, t.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query periodic transactions: %w", err)
	}
	defer rows.Close()

	var result []model.PeriodicTransactionExpanded
	for rows.Next() {
		exp, err := scanPeriodicExpanded(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan periodic transaction: %w", err)
		}
		result = append(result, *exp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating periodic transactions: %w", err)
	}
	return result, nil
}
