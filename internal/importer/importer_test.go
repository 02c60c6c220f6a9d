package importer_test

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/currency"
	"github.com/Veraticus/tally/internal/importer"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProgress struct {
	ticks int
}

func (c *countingProgress) Add(n int) error {
	c.ticks += n
	return nil
}

func record(id, amount string, d int) importer.Record {
	return importer.Record{
		Date:       time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC),
		Amount:     decimal.RequireFromString(amount),
		Title:      "Row " + id,
		ExternalID: id,
	}
}

func TestToTransaction(t *testing.T) {
	expense := importer.ToTransaction(record("a", "-25.50", 15), 3, 4, "usd")
	assert.Equal(t, model.TypeExpense, expense.Type)
	assert.True(t, expense.Amount.Equal(decimal.RequireFromString("25.50")))
	assert.Equal(t, "USD", expense.Currency)
	assert.Equal(t, int64(3), expense.SenderAccountID)
	assert.NotEmpty(t, expense.ImportHash)

	income := importer.ToTransaction(record("b", "100", 15), 3, 4, "USD")
	assert.Equal(t, model.TypeIncome, income.Type)

	r := record("c", "1", 1)
	r.Title = "  "
	r.Currency = "EUR"
	tx := importer.ToTransaction(r, 1, 1, "USD")
	assert.Equal(t, "Imported transaction", tx.Title)
	assert.Equal(t, "EUR", tx.Currency)

	// Same row, same hash; a different external id changes it.
	assert.Equal(t,
		importer.ToTransaction(record("x", "-5", 2), 1, 1, "USD").ImportHash,
		importer.ToTransaction(record("x", "-5", 2), 1, 1, "USD").ImportHash)
	assert.NotEqual(t,
		importer.ToTransaction(record("x", "-5", 2), 1, 1, "USD").ImportHash,
		importer.ToTransaction(record("y", "-5", 2), 1, 1, "USD").ImportHash)
}

func TestImporter_Import(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	static, err := currency.NewStatic(nil)
	require.NoError(t, err)
	engine, err := ledger.New(db.Storage, static, testutil.AggregateAccountID)
	require.NoError(t, err)

	checking := db.MustAccount("Checking", "USD")
	uncategorized := db.MustCategory("Uncategorized")

	progress := &countingProgress{}
	imp, err := importer.New(engine, db.Storage, importer.WithProgress(progress))
	require.NoError(t, err)

	eurRow := record("eur", "-10", 9)
	eurRow.Currency = "EUR" // no rate configured
	records := []importer.Record{
		record("1", "-25.50", 15),
		record("2", "1000", 16),
		record("3", "0", 17),
		eurRow,
	}

	result, err := imp.Import(ctx, checking.ID, uncategorized.ID, records)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], common.ErrConversion)
	assert.Equal(t, 4, progress.ticks)

	assert.True(t, db.Balance(checking.ID).Equal(decimal.RequireFromString("974.50")))

	// Importing the same statement again changes nothing.
	again, err := imp.Import(ctx, checking.ID, uncategorized.ID, records[:2])
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 2, again.Skipped)
	assert.Equal(t, 2, db.CountTransactions())
}

func TestImporter_UnknownAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	static, err := currency.NewStatic(nil)
	require.NoError(t, err)
	engine, err := ledger.New(db.Storage, static, testutil.AggregateAccountID)
	require.NoError(t, err)

	imp, err := importer.New(engine, db.Storage)
	require.NoError(t, err)

	_, err = imp.Import(context.Background(), 404, 1, nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
