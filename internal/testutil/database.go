// Package testutil provides test utilities for the tally ledger: an isolated,
// migrated database with the aggregate account in place plus helpers to seed
// accounts, categories and budgets and to read balances back.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/storage"
	"github.com/shopspring/decimal"
)

// AggregateAccountID is the aggregate account seeded into every test database.
const AggregateAccountID int64 = 1

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage   service.Storage
	t         *testing.T
	Aggregate model.Account
}

// SetupTestDB creates a new in-memory test database.
// It automatically handles migrations, the aggregate account and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	checking := db.MustAccount("Checking", "USD")
//	food := db.MustCategory("Food")
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	aggregate, err := store.EnsureAggregateAccount(ctx, AggregateAccountID, "USD")
	if err != nil {
		t.Fatalf("failed to create aggregate account: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return &TestDB{
		Storage:   store,
		Aggregate: *aggregate,
		t:         t,
	}
}

// MustAccount creates an account with a zero balance or fails the test.
func (db *TestDB) MustAccount(title, currency string) model.Account {
	db.t.Helper()
	account := &model.Account{Title: title, Currency: currency}
	if err := db.Storage.CreateAccount(context.Background(), account); err != nil {
		db.t.Fatalf("failed to seed account %q: %v", title, err)
	}
	return *account
}

// MustCategory creates a category or fails the test.
func (db *TestDB) MustCategory(title string) model.Category {
	db.t.Helper()
	category := &model.Category{Title: title}
	if err := db.Storage.CreateCategory(context.Background(), category); err != nil {
		db.t.Fatalf("failed to seed category %q: %v", title, err)
	}
	return *category
}

// MustBudget stores a budget with the given window and category links or fails the test.
// The budget recurs monthly and starts with nothing spent.
func (db *TestDB) MustBudget(title string, start, end time.Time, categoryIDs ...int64) model.Budget {
	db.t.Helper()
	ctx := context.Background()
	budget := &model.Budget{
		BudgetSet:      fmt.Sprintf("set-%s", title),
		Title:          title,
		Currency:       "USD",
		Amount:         decimal.NewFromInt(500),
		StartDate:      start,
		EndDate:        end,
		Interval:       model.IntervalMonths,
		IntervalLength: 1,
	}
	if err := db.Storage.CreateBudget(ctx, budget); err != nil {
		db.t.Fatalf("failed to seed budget %q: %v", title, err)
	}
	if err := db.Storage.SetBudgetCategories(ctx, budget.ID, categoryIDs); err != nil {
		db.t.Fatalf("failed to link budget %q: %v", title, err)
	}
	return *budget
}

// Balance returns the current balance of an account or fails the test.
func (db *TestDB) Balance(accountID int64) decimal.Decimal {
	db.t.Helper()
	account, err := db.Storage.GetAccount(context.Background(), accountID)
	if err != nil {
		db.t.Fatalf("failed to load account %d: %v", accountID, err)
	}
	return account.Balance
}

// Spent returns the spent accumulator of a budget or fails the test.
func (db *TestDB) Spent(budgetID int64) decimal.Decimal {
	db.t.Helper()
	budget, err := db.Storage.GetBudget(context.Background(), budgetID)
	if err != nil {
		db.t.Fatalf("failed to load budget %d: %v", budgetID, err)
	}
	return budget.AmountSpent
}

// CountTransactions returns the number of stored transactions or fails the test.
func (db *TestDB) CountTransactions() int {
	db.t.Helper()
	list, err := db.Storage.ListTransactions(context.Background(), service.TransactionFilter{})
	if err != nil {
		db.t.Fatalf("failed to list transactions: %v", err)
	}
	return len(list)
}

// WithTransaction executes the given function within a database transaction.
// The transaction is automatically rolled back after the function completes.
func (db *TestDB) WithTransaction(fn func(tx service.Tx) error) error {
	ctx := context.Background()
	tx, err := db.Storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer tx.Rollback()

	return fn(tx)
}
