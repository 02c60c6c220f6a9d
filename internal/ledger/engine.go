// Package ledger keeps account balances and budget accumulators consistent
// with the stored transactions. It is the only code that moves money.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/events"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/shopspring/decimal"
)

// Engine applies transactions to the ledger.
type Engine struct {
	store              service.Storage
	converter          service.CurrencyConverter
	publisher          events.Publisher
	logger             *slog.Logger
	aggregateAccountID int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sends change events to p after each committed operation.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates a ledger engine. aggregateAccountID is the account that mirrors
// the net effect of every transaction.
func New(store service.Storage, converter service.CurrencyConverter, aggregateAccountID int64, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: storage is required", common.ErrMissingConfig)
	}
	if converter == nil {
		return nil, fmt.Errorf("%w: currency converter is required", common.ErrMissingConfig)
	}
	if aggregateAccountID <= 0 {
		return nil, fmt.Errorf("%w: aggregate account id must be positive", common.ErrInvalidConfig)
	}

	e := &Engine{
		store:              store,
		converter:          converter,
		aggregateAccountID: aggregateAccountID,
		publisher:          events.Nop{},
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "ledger")
	return e, nil
}

// AggregateAccountID returns the id of the aggregate account.
func (e *Engine) AggregateAccountID() int64 {
	return e.aggregateAccountID
}

// Atomically runs fn inside one storage transaction. Any error rolls back every write.
func (e *Engine) Atomically(ctx context.Context, fn func(tx service.Tx) error) error {
	return common.WithTx(ctx, e.store, fn)
}

// ApplyEffects adds the transaction's effects to balances and budgets.
func (e *Engine) ApplyEffects(ctx context.Context, txn *model.Transaction) error {
	return e.Atomically(ctx, func(tx service.Tx) error {
		return e.applyEffects(ctx, tx, txn)
	})
}

// RevertEffects removes the transaction's effects from balances and budgets.
func (e *Engine) RevertEffects(ctx context.Context, txn *model.Transaction) error {
	return e.Atomically(ctx, func(tx service.Tx) error {
		return e.revertEffects(ctx, tx, txn)
	})
}

func (e *Engine) applyEffects(ctx context.Context, q service.Queries, txn *model.Transaction) error {
	return e.adjust(ctx, q, txn, false)
}

func (e *Engine) revertEffects(ctx context.Context, q service.Queries, txn *model.Transaction) error {
	return e.adjust(ctx, q, txn, true)
}

// adjust moves the sender and aggregate balances by the signed converted amount
// and, for expenses, the spent total of every budget covering the category and timestamp.
func (e *Engine) adjust(ctx context.Context, q service.Queries, txn *model.Transaction, revert bool) error {
	if !txn.Type.Postable() {
		return fmt.Errorf("%w: %q has no ledger effects", common.ErrInvalidTransactionType, txn.Type)
	}

	delta := txn.BalanceDelta()
	if revert {
		delta = delta.Neg()
	}

	if err := q.AdjustAccountBalance(ctx, txn.SenderAccountID, delta); err != nil {
		return fmt.Errorf("adjust sender account %d: %w", txn.SenderAccountID, err)
	}
	// The aggregate already moved if it was the sender.
	if txn.SenderAccountID != e.aggregateAccountID {
		if err := q.AdjustAccountBalance(ctx, e.aggregateAccountID, delta); err != nil {
			return fmt.Errorf("adjust aggregate account %d: %w", e.aggregateAccountID, err)
		}
	}

	switch txn.Type {
	case model.TypeExpense:
		spent := txn.AmountConverted
		if revert {
			spent = spent.Neg()
		}
		return e.adjustBudgets(ctx, q, txn, spent)
	case model.TypeIncome:
		return nil
	case model.TypeTransfer:
		return fmt.Errorf("%w: transfer", common.ErrInvalidTransactionType)
	default:
		return fmt.Errorf("%w: %q", common.ErrInvalidTransactionType, txn.Type)
	}
}

func (e *Engine) adjustBudgets(ctx context.Context, q service.Queries, txn *model.Transaction, spent decimal.Decimal) error {
	budgets, err := q.FindBudgetsForExpense(ctx, txn.CategoryID, txn.Timestamp)
	if err != nil {
		return fmt.Errorf("find budgets for category %d: %w", txn.CategoryID, err)
	}

	for _, b := range budgets {
		if err := q.AdjustBudgetSpent(ctx, b.ID, spent); err != nil {
			return fmt.Errorf("adjust budget %d: %w", b.ID, err)
		}
	}
	return nil
}

// convertFor fills AmountConverted in the sender account's currency.
func (e *Engine) convertFor(ctx context.Context, q service.Queries, txn *model.Transaction) error {
	sender, err := q.GetAccount(ctx, txn.SenderAccountID)
	if err != nil {
		return fmt.Errorf("load sender account: %w", err)
	}

	if model.NormalizeCurrency(sender.Currency) == model.NormalizeCurrency(txn.Currency) {
		txn.AmountConverted = txn.Amount
		return nil
	}

	converted, err := e.converter.Convert(ctx, txn.Amount, txn.Currency, sender.Currency)
	if err != nil {
		if !errors.Is(err, common.ErrConversion) {
			err = fmt.Errorf("%w: %v", common.ErrConversion, err)
		}
		return err
	}
	txn.AmountConverted = converted
	return nil
}

// Publish announces committed transactions. Failures are logged, never returned.
func (e *Engine) Publish(ctx context.Context, kind events.Kind, txns ...model.Transaction) {
	for _, txn := range txns {
		event, err := events.New(kind, txn.ID, transactionPayload{
			Type:      txn.Type,
			Amount:    txn.AmountConverted.String(),
			AccountID: txn.SenderAccountID,
			Category:  txn.CategoryID,
		})
		if err != nil {
			e.logger.Warn("failed to build event", "kind", kind, "error", err)
			continue
		}
		if err := e.publisher.Publish(ctx, event); err != nil {
			// Already committed; publishing is best effort.
			e.logger.Warn("failed to publish event", "kind", kind, "transaction_id", txn.ID, "error", err)
		}
	}
}

type transactionPayload struct {
	Type      model.TransactionType `json:"type"`
	Amount    string                `json:"amount_converted"`
	AccountID int64                 `json:"account_id"`
	Category  int64                 `json:"category_id"`
}
