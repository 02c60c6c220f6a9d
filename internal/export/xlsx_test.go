package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/report"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleLedger() *report.Ledger {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &report.Ledger{
		Start:         start,
		End:           start.AddDate(0, 1, 0),
		TotalIncome:   decimal.NewFromInt(100),
		TotalExpenses: decimal.RequireFromString("20.5"),
		Accounts:      []model.Account{{Title: "Checking", Currency: "USD", Balance: decimal.RequireFromString("79.5")}},
		Transactions: []model.TransactionExpanded{{
			Transaction: model.Transaction{
				Type:            model.TypeExpense,
				Title:           "Coffee",
				Amount:          decimal.RequireFromString("20.5"),
				AmountConverted: decimal.RequireFromString("20.5"),
				Currency:        "USD",
				Timestamp:       start.AddDate(0, 0, 4),
			},
			Sender:   model.Account{Title: "Checking"},
			Category: model.Category{Title: "Food"},
		}},
	}
}

func TestWorkbook(t *testing.T) {
	f, err := Workbook(sampleLedger())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t,
		[]string{report.SummaryTable, report.TransactionsTable, report.BudgetsTable, report.AccountsTable, report.CategoriesTable},
		f.GetSheetList())

	rows, err := f.GetRows(report.TransactionsTable)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "2024-01-05", rows[1][0])
	assert.Equal(t, "Coffee", rows[1][1])
	assert.Equal(t, "20.5", rows[1][5])
}

func TestWriteXLSX_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleLedger()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(report.AccountsTable)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Checking", "USD", "79.5"}, rows[1])
}

func TestWriteXLSXFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	require.NoError(t, WriteXLSXFile(path, sampleLedger()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Len(t, f.GetSheetList(), 5)
}
