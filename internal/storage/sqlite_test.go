package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustAccount(t *testing.T, s *SQLiteStorage, title, currency string) *model.Account {
	t.Helper()
	a := &model.Account{Title: title, Currency: currency}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

func mustCategory(t *testing.T, s *SQLiteStorage, title string) *model.Category {
	t.Helper()
	c := &model.Category{Title: title, Symbol: "*"}
	require.NoError(t, s.CreateCategory(context.Background(), c))
	return c
}

func mustBudget(t *testing.T, s *SQLiteStorage, start, end time.Time, categoryIDs ...int64) *model.Budget {
	t.Helper()
	ctx := context.Background()
	b := &model.Budget{
		BudgetSet:      "set-1",
		Title:          "Food",
		Currency:       "USD",
		Amount:         decimal.NewFromInt(500),
		StartDate:      start,
		EndDate:        end,
		Interval:       model.IntervalMonths,
		IntervalLength: 1,
	}
	require.NoError(t, s.CreateBudget(ctx, b))
	require.NoError(t, s.SetBudgetCategories(ctx, b.ID, categoryIDs))
	return b
}

func TestSQLiteStorage_Migrate(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Running again is a no-op.
	require.NoError(t, store.Migrate(ctx))
}

func TestSQLiteStorage_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	mustAccount(t, store, "Wallet", "USD")
	accounts, err := store.ListAccounts(ctx, service.AccountFilter{})
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestSQLiteStorage_Accounts(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	usd := mustAccount(t, store, "Checking", "USD")
	eur := mustAccount(t, store, "Savings", "EUR")

	t.Run("adjust balance accumulates", func(t *testing.T) {
		require.NoError(t, store.AdjustAccountBalance(ctx, usd.ID, decimal.RequireFromString("100.10")))
		require.NoError(t, store.AdjustAccountBalance(ctx, usd.ID, decimal.RequireFromString("-20.05")))

		got, err := store.GetAccount(ctx, usd.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("80.05")), "balance %s", got.Balance)
	})

	t.Run("update leaves balance alone", func(t *testing.T) {
		usd.Title = "Main checking"
		usd.Balance = decimal.NewFromInt(999)
		require.NoError(t, store.UpdateAccount(ctx, usd))

		got, err := store.GetAccount(ctx, usd.ID)
		require.NoError(t, err)
		assert.Equal(t, "Main checking", got.Title)
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("80.05")))
	})

	t.Run("filter by currency and exclusion", func(t *testing.T) {
		accounts, err := store.ListAccounts(ctx, service.AccountFilter{Currency: "EUR"})
		require.NoError(t, err)
		require.Len(t, accounts, 1)
		assert.Equal(t, eur.ID, accounts[0].ID)

		accounts, err = store.ListAccounts(ctx, service.AccountFilter{ExcludeID: eur.ID})
		require.NoError(t, err)
		require.Len(t, accounts, 1)
		assert.Equal(t, usd.ID, accounts[0].ID)
	})

	t.Run("sum excludes one account", func(t *testing.T) {
		require.NoError(t, store.AdjustAccountBalance(ctx, eur.ID, decimal.NewFromInt(5)))

		total, err := store.SumAccountBalances(ctx, usd.ID)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.NewFromInt(5)), "total %s", total)

		total, err = store.SumAccountBalances(ctx, 0)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("85.05")), "total %s", total)
	})

	t.Run("missing rows are not found", func(t *testing.T) {
		_, err := store.GetAccount(ctx, 9999)
		assert.ErrorIs(t, err, common.ErrNotFound)
		assert.ErrorIs(t, store.AdjustAccountBalance(ctx, 9999, decimal.NewFromInt(1)), common.ErrNotFound)
		assert.ErrorIs(t, store.DeleteAccount(ctx, 9999), common.ErrNotFound)
	})
}

func TestSQLiteStorage_EnsureAggregateAccount(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first, err := store.EnsureAggregateAccount(ctx, 1, "usd")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, "USD", first.Currency)

	second, err := store.EnsureAggregateAccount(ctx, 1, "EUR")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "USD", second.Currency)

	// Regular accounts are numbered after the aggregate.
	other := mustAccount(t, store, "Cash", "USD")
	assert.Greater(t, other.ID, int64(1))
}

func TestSQLiteStorage_BudgetCategories(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	food := mustCategory(t, store, "Food")
	fun := mustCategory(t, store, "Fun")
	rent := mustCategory(t, store, "Rent")
	b := mustBudget(t, store, day(2024, 3, 1), day(2024, 4, 1), food.ID, fun.ID)

	cats, err := store.GetBudgetCategories(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	// Replacing links drops the old ones.
	require.NoError(t, store.SetBudgetCategories(ctx, b.ID, []int64{rent.ID}))
	withCats, err := store.GetBudgetWithCategories(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, withCats.Categories, 1)
	assert.Equal(t, rent.ID, withCats.Categories[0].ID)

	// Deleting a category removes its links.
	require.NoError(t, store.DeleteCategory(ctx, rent.ID))
	cats, err = store.GetBudgetCategories(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestSQLiteStorage_FindBudgetsForExpense(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	food := mustCategory(t, store, "Food")
	other := mustCategory(t, store, "Other")
	march := mustBudget(t, store, day(2024, 3, 1), day(2024, 4, 1), food.ID)
	mustBudget(t, store, day(2024, 4, 1), day(2024, 5, 1), food.ID)

	tests := []struct {
		ts       time.Time
		name     string
		category int64
		want     []int64
	}{
		{name: "start is inclusive", ts: day(2024, 3, 1), category: food.ID, want: []int64{march.ID}},
		{name: "inside window", ts: day(2024, 3, 15).Add(13 * time.Hour), category: food.ID, want: []int64{march.ID}},
		{name: "last instant before end", ts: day(2024, 4, 1).Add(-time.Nanosecond), category: food.ID, want: []int64{march.ID}},
		{name: "unlinked category", ts: day(2024, 3, 15), category: other.ID},
		{name: "before any window", ts: day(2024, 2, 28), category: food.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budgets, err := store.FindBudgetsForExpense(ctx, tt.category, tt.ts)
			require.NoError(t, err)
			var ids []int64
			for _, b := range budgets {
				ids = append(ids, b.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteStorage_Transactions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	checking := mustAccount(t, store, "Checking", "USD")
	savings := mustAccount(t, store, "Savings", "USD")
	food := mustCategory(t, store, "Food")
	b := mustBudget(t, store, day(2024, 3, 1), day(2024, 4, 1), food.ID)

	expense := &model.Transaction{
		Type:            model.TypeExpense,
		Title:           "Lunch",
		Amount:          decimal.NewFromInt(12),
		AmountConverted: decimal.NewFromInt(12),
		Currency:        "USD",
		SenderAccountID: checking.ID,
		CategoryID:      food.ID,
		Timestamp:       day(2024, 3, 5).Add(12 * time.Hour),
	}
	require.NoError(t, store.CreateTransaction(ctx, expense))

	recipient := savings.ID
	income := &model.Transaction{
		Type:               model.TypeIncome,
		Title:              "Refund",
		Amount:             decimal.NewFromInt(3),
		AmountConverted:    decimal.NewFromInt(3),
		Currency:           "USD",
		SenderAccountID:    checking.ID,
		RecipientAccountID: &recipient,
		CategoryID:         food.ID,
		Timestamp:          day(2024, 3, 6),
		ImportHash:         "abc",
	}
	require.NoError(t, store.CreateTransaction(ctx, income))

	t.Run("round trip keeps timestamp and amounts", func(t *testing.T) {
		got, err := store.GetTransaction(ctx, expense.ID)
		require.NoError(t, err)
		assert.True(t, got.Timestamp.Equal(expense.Timestamp))
		assert.True(t, got.Amount.Equal(expense.Amount))
		assert.Nil(t, got.RecipientAccountID)
	})

	t.Run("expanded view joins accounts and category", func(t *testing.T) {
		exp, err := store.GetTransactionExpanded(ctx, expense.ID)
		require.NoError(t, err)
		assert.Equal(t, "Checking", exp.Sender.Title)
		assert.Nil(t, exp.Recipient)
		assert.Equal(t, "Food", exp.Category.Title)

		exp, err = store.GetTransactionExpanded(ctx, income.ID)
		require.NoError(t, err)
		require.NotNil(t, exp.Recipient)
		assert.Equal(t, "Savings", exp.Recipient.Title)
	})

	t.Run("transfer rows are rejected", func(t *testing.T) {
		transfer := *expense
		transfer.ID = 0
		transfer.Type = model.TypeTransfer
		assert.ErrorIs(t, store.CreateTransaction(ctx, &transfer), ErrInvalidTransaction)
	})

	t.Run("import hash is unique", func(t *testing.T) {
		exists, err := store.ImportHashExists(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, exists)

		dup := *income
		dup.ID = 0
		assert.ErrorIs(t, store.CreateTransaction(ctx, &dup), ErrDuplicateImport)
	})

	t.Run("filters", func(t *testing.T) {
		list, err := store.ListTransactions(ctx, service.TransactionFilter{Type: model.TypeExpense})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, expense.ID, list[0].ID)

		start := day(2024, 3, 6)
		list, err = store.ListTransactions(ctx, service.TransactionFilter{StartDate: &start})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, income.ID, list[0].ID)
	})

	t.Run("budget expense sum only counts expenses", func(t *testing.T) {
		sum, err := store.SumExpensesForBudget(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, sum.Equal(decimal.NewFromInt(12)), "sum %s", sum)
	})

	t.Run("references are counted", func(t *testing.T) {
		n, err := store.CountAccountReferences(ctx, savings.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = store.CountCategoryReferences(ctx, food.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestSQLiteStorage_LatestBudgetPerSet(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	mustBudget(t, store, day(2024, 1, 1), day(2024, 2, 1))
	feb := mustBudget(t, store, day(2024, 2, 1), day(2024, 3, 1))
	other := &model.Budget{
		BudgetSet: "set-2", Title: "Travel", Currency: "EUR", Amount: decimal.NewFromInt(1000),
		StartDate: day(2024, 1, 1), EndDate: day(2025, 1, 1),
	}
	require.NoError(t, store.CreateBudget(ctx, other))

	latest, err := store.LatestBudgetPerSet(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, feb.ID, latest[0].ID)
	assert.Equal(t, other.ID, latest[1].ID)
}

func TestSQLiteStorage_Periodic(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	checking := mustAccount(t, store, "Checking", "USD")
	food := mustCategory(t, store, "Food")

	due := &model.PeriodicTransaction{
		Type: model.TypeExpense, Title: "Rent", Amount: decimal.NewFromInt(900), Currency: "USD",
		SenderAccountID: checking.ID, CategoryID: food.ID, NextTransaction: day(2024, 3, 1),
		Interval: model.IntervalMonths, IntervalLength: 1,
	}
	later := &model.PeriodicTransaction{
		Type: model.TypeIncome, Title: "Salary", Amount: decimal.NewFromInt(3000), Currency: "USD",
		SenderAccountID: checking.ID, CategoryID: food.ID, NextTransaction: day(2024, 3, 25),
	}
	require.NoError(t, store.CreatePeriodic(ctx, due))
	require.NoError(t, store.CreatePeriodic(ctx, later))

	list, err := store.ListDuePeriodic(ctx, day(2024, 3, 1))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)
	assert.Equal(t, model.IntervalMonths, list[0].Interval)

	due.NextTransaction = day(2024, 4, 1)
	require.NoError(t, store.UpdatePeriodic(ctx, due))
	list, err = store.ListDuePeriodic(ctx, day(2024, 3, 31))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, later.ID, list[0].ID)

	expanded, err := store.ListPeriodicExpanded(ctx)
	require.NoError(t, err)
	require.Len(t, expanded, 2)
	assert.Equal(t, "Checking", expanded[0].Sender.Title)

	require.NoError(t, store.DeletePeriodic(ctx, later.ID))
	_, err = store.GetPeriodic(ctx, later.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_TxRollback(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	account := mustAccount(t, store, "Checking", "USD")

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AdjustAccountBalance(ctx, account.ID, decimal.NewFromInt(50)))
	require.NoError(t, tx.Rollback())

	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())

	tx, err = store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AdjustAccountBalance(ctx, account.ID, decimal.NewFromInt(50)))
	require.NoError(t, tx.Commit())

	got, err = store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(50)))
}
