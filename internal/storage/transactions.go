package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/shopspring/decimal"
)

const transactionColumns = `t.id, t.type, t.title, t.amount, t.amount_converted, t.sender_account_id,
	t.recipient_account_id, t.currency, t.category_id, t.timestamp, t.import_hash`

// expandedColumns adds the sender, optional recipient and category to a transaction-shaped row.
const expandedColumns = `,
	s.id, s.title, s.currency, s.balance, s.color, s.sort_order, s.created_at,
	r.id, r.title, r.currency, r.balance, r.color, r.sort_order, r.created_at,
	c.id, c.title, c.symbol`

const expandedJoins = `
	JOIN accounts s ON s.id = t.sender_account_id
	LEFT JOIN accounts r ON r.id = t.recipient_account_id
	JOIN categories c ON c.id = t.category_id`

func transactionDest(txn *model.Transaction, recipient *sql.NullInt64, importHash *sql.NullString) []any {
	return []any{&txn.ID, &txn.Type, &txn.Title, &txn.Amount, &txn.AmountConverted, &txn.SenderAccountID,
		recipient, &txn.Currency, &txn.CategoryID, scanTime(&txn.Timestamp), importHash}
}

func scanTransaction(row interface{ Scan(...any) error }) (*model.Transaction, error) {
	var (
		txn        model.Transaction
		recipient  sql.NullInt64
		importHash sql.NullString
	)
	if err := row.Scan(transactionDest(&txn, &recipient, &importHash)...); err != nil {
		return nil, err
	}
	txn.RecipientAccountID = idFromNull(recipient)
	txn.ImportHash = importHash.String
	return &txn, nil
}

// relatedRow holds the joined account and category columns of an expanded row.
type relatedRow struct {
	recipientCreated sql.NullString
	recipientTitle   sql.NullString
	recipientCurr    sql.NullString
	recipientBalance decimal.NullDecimal
	sender           model.Account
	category         model.Category
	recipientID      sql.NullInt64
	recipientColor   sql.NullInt64
	recipientSort    sql.NullInt64
}

func (r *relatedRow) dest() []any {
	return []any{
		&r.sender.ID, &r.sender.Title, &r.sender.Currency, &r.sender.Balance,
		&r.sender.Color, &r.sender.SortOrder, scanTime(&r.sender.CreatedAt),
		&r.recipientID, &r.recipientTitle, &r.recipientCurr, &r.recipientBalance,
		&r.recipientColor, &r.recipientSort, &r.recipientCreated,
		&r.category.ID, &r.category.Title, &r.category.Symbol,
	}
}

func (r *relatedRow) recipient() (*model.Account, error) {
	if !r.recipientID.Valid {
		return nil, nil
	}
	account := &model.Account{
		ID:        r.recipientID.Int64,
		Title:     r.recipientTitle.String,
		Currency:  r.recipientCurr.String,
		Balance:   r.recipientBalance.Decimal,
		Color:     int(r.recipientColor.Int64),
		SortOrder: int(r.recipientSort.Int64),
	}
	if r.recipientCreated.Valid {
		if err := scanTime(&account.CreatedAt).Scan(r.recipientCreated.String); err != nil {
			return nil, err
		}
	}
	return account, nil
}

func scanTransactionExpanded(row interface{ Scan(...any) error }) (*model.TransactionExpanded, error) {
	var (
		exp        model.TransactionExpanded
		recipient  sql.NullInt64
		importHash sql.NullString
		related    relatedRow
	)

	dest := append(transactionDest(&exp.Transaction, &recipient, &importHash), related.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	exp.RecipientAccountID = idFromNull(recipient)
	exp.ImportHash = importHash.String
	exp.Sender = related.sender
	exp.Category = related.category

	account, err := related.recipient()
	if err != nil {
		return nil, err
	}
	exp.Recipient = account
	return &exp, nil
}

// CreateTransaction inserts a postable transaction row.
func (s *queries) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNotNil(txn, "transaction"); err != nil {
		return err
	}
	if !txn.Type.Postable() {
		return fmt.Errorf("%w: type %q", ErrInvalidTransaction, txn.Type)
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT INTO transactions (type, title, amount, amount_converted, sender_account_id,
			recipient_account_id, currency, category_id, timestamp, import_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(txn.Type), txn.Title, txn.Amount.String(), txn.AmountConverted.String(), txn.SenderAccountID,
		nullableID(txn.RecipientAccountID), txn.Currency, txn.CategoryID, formatTime(txn.Timestamp),
		nullableString(txn.ImportHash))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: transaction import hash %s", ErrDuplicateImport, txn.ImportHash)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transaction ID: %w", err)
	}
	txn.ID = id
	return nil
}

// GetTransaction returns a transaction by id.
func (s *queries) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions t WHERE t.id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return txn, nil
}

// UpdateTransaction overwrites a transaction row.
func (s *queries) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNotNil(txn, "transaction"); err != nil {
		return err
	}
	if !txn.Type.Postable() {
		return fmt.Errorf("%w: type %q", ErrInvalidTransaction, txn.Type)
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE transactions SET type = ?, title = ?, amount = ?, amount_converted = ?,
			sender_account_id = ?, recipient_account_id = ?, currency = ?, category_id = ?, timestamp = ?
		WHERE id = ?`,
		string(txn.Type), txn.Title, txn.Amount.String(), txn.AmountConverted.String(),
		txn.SenderAccountID, nullableID(txn.RecipientAccountID), txn.Currency, txn.CategoryID,
		formatTime(txn.Timestamp), txn.ID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return expectOneRow(result, "transaction", txn.ID)
}

// DeleteTransaction removes a transaction row.
func (s *queries) DeleteTransaction(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return expectOneRow(result, "transaction", id)
}

func buildTransactionFilter(filter service.TransactionFilter) (string, []any) {
	var (
		where []string
		args  []any
	)

	if filter.StartDate != nil {
		where = append(where, "t.timestamp >= ?")
		args = append(args, formatTime(*filter.StartDate))
	}
	if filter.EndDate != nil {
		where = append(where, "t.timestamp < ?")
		args = append(args, formatTime(*filter.EndDate))
	}
	if filter.AccountID != nil {
		where = append(where, "t.sender_account_id = ?")
		args = append(args, *filter.AccountID)
	}
	if filter.CategoryID != nil {
		where = append(where, "t.category_id = ?")
		args = append(args, *filter.CategoryID)
	}
	if filter.Type != "" {
		where = append(where, "t.type = ?")
		args = append(args, string(filter.Type))
	}

	var clause string
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	clause += " ORDER BY t.timestamp DESC, t.id DESC"

	if filter.Limit > 0 {
		clause += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			clause += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	return clause, args
}

// ListTransactions returns transactions matching the filter, newest first.
func (s *queries) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	clause, args := buildTransactionFilter(filter)
	rows, err := s.q.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions t`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// GetTransactionExpanded returns a transaction joined with its accounts and category.
func (s *queries) GetTransactionExpanded(ctx context.Context, id int64) (*model.TransactionExpanded, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+expandedColumns+` FROM transactions t`+expandedJoins+` WHERE t.id = ?`, id)
	exp, err := scanTransactionExpanded(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return exp, nil
}

// ListTransactionsExpanded returns joined transactions matching the filter, newest first.
func (s *queries) ListTransactionsExpanded(ctx context.Context, filter service.TransactionFilter) ([]model.TransactionExpanded, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	clause, args := buildTransactionFilter(filter)
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+transactionColumns+expandedColumns+` FROM transactions t`+expandedJoins+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []model.TransactionExpanded
	for rows.Next() {
		exp, err := scanTransactionExpanded(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *exp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// ImportHashExists reports whether a transaction with the import hash was already stored.
func (s *queries) ImportHashExists(ctx context.Context, hash string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(hash, "hash"); err != nil {
		return false, err
	}

	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE import_hash = ?)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check import hash: %w", err)
	}
	return exists, nil
}
