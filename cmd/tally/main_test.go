package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/events"
	"github.com/Veraticus/tally/internal/importer"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/report"
	"github.com/Veraticus/tally/internal/sheets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want string
	}{
		{
			name: "validation error shown verbatim",
			err:  fmt.Errorf("add: %w", &model.ValidationError{Field: "amount", Message: "must not be negative"}),
			want: "invalid amount: must not be negative",
		},
		{
			name: "user error shows its message",
			err:  common.NewUserError("budget 7 does not recur", errors.New("boom")),
			want: "budget 7 does not recur",
		},
		{
			name: "known sentinel keeps its chain",
			err:  fmt.Errorf("account 3: %w", common.ErrNotFound),
			want: "account 3: not found",
		},
		{
			name: "cancellation",
			err:  fmt.Errorf("import: %w", context.Canceled),
			want: "interrupted",
		},
		{
			name: "anything else is hidden",
			err:  errors.New("sqlite: disk I/O error"),
			want: "operation failed (rerun with --log-level debug for details)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, userMessage(tt.err))
		})
	}
}

func TestBudgetFlags_Build(t *testing.T) {
	f := budgetFlags{
		amount:     "$1,200",
		currency:   "usd",
		start:      "2024-03-01",
		interval:   "month",
		every:      1,
		categories: "2,5",
	}

	b, categoryIDs, err := f.build("Groceries", testNow)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", b.Title)
	assert.Equal(t, "USD", b.Currency)
	assert.Equal(t, "1200", b.Amount.String())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), b.StartDate)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), b.EndDate)
	assert.Equal(t, []int64{2, 5}, categoryIDs)

	t.Run("explicit end before start", func(t *testing.T) {
		bad := f
		bad.end = "2024-02-01"
		_, _, err := bad.build("Groceries", testNow)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("bad amount", func(t *testing.T) {
		bad := f
		bad.amount = "lots"
		_, _, err := bad.build("Groceries", testNow)
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestTxFlags_Build(t *testing.T) {
	f := txFlags{
		typ:        "transfer",
		amount:     "40.10",
		currency:   "eur",
		date:       "yesterday",
		accountID:  2,
		toID:       3,
		categoryID: 4,
	}

	txn, err := f.build("Rent share", testNow)
	require.NoError(t, err)
	assert.Equal(t, model.TypeTransfer, txn.Type)
	assert.Equal(t, "EUR", txn.Currency)
	assert.Equal(t, "40.1", txn.Amount.String())
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), txn.Timestamp)
	require.NotNil(t, txn.RecipientAccountID)
	assert.Equal(t, int64(3), *txn.RecipientAccountID)

	f.toID = 0
	f.typ = "gift"
	_, err = f.build("Rent share", testNow)
	assert.Error(t, err)
}

func TestReportRange_Resolve(t *testing.T) {
	var r reportRange
	start, end, err := r.resolve(testNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), end)

	r = reportRange{from: "2024-01-01", to: "2024-02-01"}
	start, end, err = r.resolve(testNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), end)

	r = reportRange{from: "last tuesday"}
	_, _, err = r.resolve(testNow)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestParseKinds(t *testing.T) {
	kinds, err := parseKinds(nil)
	require.NoError(t, err)
	assert.Equal(t, events.AllKinds, kinds)

	kinds, err = parseKinds([]string{" Budget.Renewed "})
	require.NoError(t, err)
	assert.Equal(t, []events.Kind{events.BudgetRenewed}, kinds)

	_, err = parseKinds([]string{"account.created"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestImportTarget_Filter(t *testing.T) {
	records := []importer.Record{
		{Title: "a", SourceAccount: "111"},
		{Title: "b", SourceAccount: "222"},
		{Title: "c", SourceAccount: "111"},
	}

	all := (&importTarget{}).filter(records)
	assert.Len(t, all, 3)

	only := (&importTarget{statementAccount: "111"}).filter(records)
	require.Len(t, only, 2)
	assert.Equal(t, "a", only[0].Title)
	assert.Equal(t, "c", only[1].Title)
	assert.Equal(t, "b", records[1].Title)
}

func TestExpandStatementPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"jan.ofx", "feb.QFX", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	single := filepath.Join(dir, "notes.txt")

	files, err := expandStatementPaths([]string{dir, single})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "jan.ofx"),
		filepath.Join(dir, "feb.QFX"),
		single,
	}, files)

	_, err = expandStatementPaths([]string{filepath.Join(dir, "missing.ofx")})
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	l := &report.Ledger{Transactions: make([]model.TransactionExpanded, 3)}
	w := sheets.NewMockWriter()
	var out bytes.Buffer

	require.NoError(t, writeReport(context.Background(), w, l, &out))
	assert.Equal(t, 1, w.WriteCallCount)
	assert.Same(t, l, w.LastLedger)
	assert.Contains(t, out.String(), "Exported 3 transactions")

	w.SetWriteError(errors.New("quota exceeded"))
	err := writeReport(context.Background(), w, l, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}
