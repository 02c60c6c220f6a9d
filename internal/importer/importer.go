// Package importer posts bank statement rows to the ledger, skipping rows
// that were imported before.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/shopspring/decimal"
)

// Record is one statement row. Amount is signed: negative money left the account.
type Record struct {
	Date          time.Time
	Amount        decimal.Decimal
	Title         string
	Currency      string
	ExternalID    string
	SourceAccount string
}

// Result counts what happened to each record.
type Result struct {
	Errors  []error
	Created int
	Skipped int
	Failed  int
}

// Progress receives one tick per processed record.
type Progress interface {
	Add(n int) error
}

// Importer creates ledger transactions from statement records.
type Importer struct {
	ledger   *ledger.Engine
	store    service.Queries
	progress Progress
	logger   *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithProgress reports progress to p.
func WithProgress(p Progress) Option {
	return func(i *Importer) {
		i.progress = p
	}
}

// WithLogger sets the importer logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Importer) {
		if l != nil {
			i.logger = l
		}
	}
}

// New creates an importer that posts through engine and checks duplicates in store.
func New(engine *ledger.Engine, store service.Queries, opts ...Option) (*Importer, error) {
	if engine == nil || store == nil {
		return nil, fmt.Errorf("%w: ledger and storage are required", common.ErrMissingConfig)
	}
	i := &Importer{ledger: engine, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("component", "importer")
	return i, nil
}

// ToTransaction maps a record onto a ledger transaction for accountID.
// Negative amounts become expenses, positive amounts incomes. fallbackCurrency
// is used when the record carries none.
func ToTransaction(r Record, accountID, categoryID int64, fallbackCurrency string) model.Transaction {
	typ := model.TypeIncome
	if r.Amount.IsNegative() {
		typ = model.TypeExpense
	}

	currency := r.Currency
	if strings.TrimSpace(currency) == "" {
		currency = fallbackCurrency
	}

	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = "Imported transaction"
	}

	txn := model.Transaction{
		Type:            typ,
		Title:           title,
		Amount:          r.Amount.Abs(),
		Currency:        model.NormalizeCurrency(currency),
		SenderAccountID: accountID,
		CategoryID:      categoryID,
		Timestamp:       r.Date.UTC(),
	}
	txn.ImportHash = txn.GenerateImportHash(r.ExternalID)
	return txn
}

// Import posts every record to accountID under categoryID. Duplicates and zero
// amounts are skipped; a failing record is counted and the import continues.
// Only a cancelled context stops it early.
func (i *Importer) Import(ctx context.Context, accountID, categoryID int64, records []Record) (Result, error) {
	var result Result

	account, err := i.store.GetAccount(ctx, accountID)
	if err != nil {
		return result, fmt.Errorf("load import account: %w", err)
	}
	if _, err := i.store.GetCategory(ctx, categoryID); err != nil {
		return result, fmt.Errorf("load import category: %w", err)
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		i.importOne(ctx, r, account, categoryID, &result)

		if i.progress != nil {
			_ = i.progress.Add(1)
		}
	}

	i.logger.Info("import complete",
		"account_id", accountID,
		"created", result.Created,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result, nil
}

func (i *Importer) importOne(ctx context.Context, r Record, account *model.Account, categoryID int64, result *Result) {
	if r.Amount.IsZero() {
		result.Skipped++
		return
	}

	txn := ToTransaction(r, account.ID, categoryID, account.Currency)

	exists, err := i.store.ImportHashExists(ctx, txn.ImportHash)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Errorf("record %s: %w", r.ExternalID, err))
		return
	}
	if exists {
		result.Skipped++
		return
	}

	if err := i.ledger.CreateTransaction(ctx, &txn); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			result.Skipped++
			return
		}
		i.logger.Warn("failed to import record", "external_id", r.ExternalID, "error", err)
		result.Failed++
		result.Errors = append(result.Errors, fmt.Errorf("record %s: %w", r.ExternalID, err))
		return
	}
	result.Created++
}

// Fetcher pulls statement rows from a linked institution.
type Fetcher interface {
	GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]Record, error)
	GetAccounts(ctx context.Context) ([]string, error)
}
