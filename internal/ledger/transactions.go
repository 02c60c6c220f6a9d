package ledger

import (
	"context"
	"fmt"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/events"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// CreateTransaction converts, stores and applies a single expense or income.
// Transfers must go through ProcessTransaction.
func (e *Engine) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := e.Atomically(ctx, func(tx service.Tx) error {
		return e.CreateTx(ctx, tx, txn)
	}); err != nil {
		return err
	}

	e.logger.Info("created transaction",
		"id", txn.ID,
		"type", txn.Type,
		"amount", txn.Amount.String(),
		"currency", txn.Currency)
	e.Publish(ctx, events.TransactionCreated, *txn)
	return nil
}

// CreateTx is CreateTransaction inside a caller-owned storage transaction.
// The conversion happens before anything is written.
func (e *Engine) CreateTx(ctx context.Context, q service.Queries, txn *model.Transaction) error {
	if !txn.Type.Postable() {
		return fmt.Errorf("%w: cannot store a %s directly", common.ErrInvalidTransactionType, txn.Type)
	}
	if err := txn.Validate(); err != nil {
		return err
	}

	if err := e.convertFor(ctx, q, txn); err != nil {
		return err
	}

	if err := q.CreateTransaction(ctx, txn); err != nil {
		return fmt.Errorf("store transaction: %w", err)
	}

	return e.applyEffects(ctx, q, txn)
}

// UpdateTransaction replaces a stored transaction: the old effects are reverted,
// the conversion is recomputed against the (possibly new) sender, and the new
// effects are applied.
func (e *Engine) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	if !txn.Type.Postable() {
		return fmt.Errorf("%w: cannot store a %s directly", common.ErrInvalidTransactionType, txn.Type)
	}
	if err := txn.Validate(); err != nil {
		return err
	}

	if err := e.Atomically(ctx, func(tx service.Tx) error {
		existing, err := tx.GetTransaction(ctx, txn.ID)
		if err != nil {
			return err
		}

		if err := e.revertEffects(ctx, tx, existing); err != nil {
			return err
		}

		if err := e.convertFor(ctx, tx, txn); err != nil {
			return err
		}

		txn.ImportHash = existing.ImportHash
		if err := tx.UpdateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("store transaction: %w", err)
		}

		return e.applyEffects(ctx, tx, txn)
	}); err != nil {
		return err
	}

	e.logger.Info("updated transaction", "id", txn.ID)
	e.Publish(ctx, events.TransactionUpdated, *txn)
	return nil
}

// DeleteTransaction reverts a transaction's effects and removes it.
func (e *Engine) DeleteTransaction(ctx context.Context, id int64) error {
	var existing *model.Transaction
	if err := e.Atomically(ctx, func(tx service.Tx) error {
		var err error
		existing, err = tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}

		if err := e.revertEffects(ctx, tx, existing); err != nil {
			return err
		}

		return tx.DeleteTransaction(ctx, id)
	}); err != nil {
		return err
	}

	e.logger.Info("deleted transaction", "id", id)
	e.Publish(ctx, events.TransactionDeleted, *existing)
	return nil
}

// ProcessTransaction is the entry point for user-submitted transactions.
// Expenses and incomes are created as-is. A transfer becomes two rows: an
// income on the recipient account and an expense on the sender account,
// neither carrying a recipient. Both legs commit or neither does.
func (e *Engine) ProcessTransaction(ctx context.Context, txn *model.Transaction) ([]model.Transaction, error) {
	if err := txn.Validate(); err != nil {
		return nil, err
	}

	var created []model.Transaction
	if err := e.Atomically(ctx, func(tx service.Tx) error {
		var err error
		created, err = e.ProcessTx(ctx, tx, txn)
		return err
	}); err != nil {
		return nil, err
	}

	e.logger.Info("processed transaction", "type", txn.Type, "rows", len(created))
	e.Publish(ctx, events.TransactionCreated, created...)
	return created, nil
}

// ProcessTx is ProcessTransaction inside a caller-owned storage transaction.
// It returns the rows that were stored.
func (e *Engine) ProcessTx(ctx context.Context, q service.Queries, txn *model.Transaction) ([]model.Transaction, error) {
	switch txn.Type {
	case model.TypeExpense, model.TypeIncome:
		row := *txn
		if err := e.CreateTx(ctx, q, &row); err != nil {
			return nil, err
		}
		txn.ID = row.ID
		txn.AmountConverted = row.AmountConverted
		return []model.Transaction{row}, nil

	case model.TypeTransfer:
		income, expense, err := splitTransfer(txn)
		if err != nil {
			return nil, err
		}
		if err := e.CreateTx(ctx, q, &income); err != nil {
			return nil, fmt.Errorf("transfer income leg: %w", err)
		}
		if err := e.CreateTx(ctx, q, &expense); err != nil {
			return nil, fmt.Errorf("transfer expense leg: %w", err)
		}
		return []model.Transaction{income, expense}, nil

	default:
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidTransactionType, txn.Type)
	}
}

// splitTransfer builds the two legs of a transfer.
func splitTransfer(txn *model.Transaction) (income, expense model.Transaction, err error) {
	if txn.RecipientAccountID == nil {
		return income, expense, &model.ValidationError{Field: "recipient_account", Message: "is required for transfers"}
	}
	if *txn.RecipientAccountID == txn.SenderAccountID {
		return income, expense, &model.ValidationError{Field: "recipient_account", Message: "must differ from the sender"}
	}

	income = *txn
	income.ID = 0
	income.Type = model.TypeIncome
	income.SenderAccountID = *txn.RecipientAccountID
	income.RecipientAccountID = nil

	expense = *txn
	expense.ID = 0
	expense.Type = model.TypeExpense
	expense.RecipientAccountID = nil

	return income, expense, nil
}
