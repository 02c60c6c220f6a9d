package report

import (
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_Tables(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := &Ledger{
		Start:         start,
		End:           start.AddDate(0, 1, 0),
		TotalIncome:   decimal.NewFromInt(100),
		TotalExpenses: decimal.NewFromInt(40),
		Accounts:      []model.Account{{Title: "Checking", Currency: "USD", Balance: decimal.NewFromInt(60)}},
		Aggregate:     &model.Account{Title: "All accounts", Currency: "USD", Balance: decimal.NewFromInt(60)},
		Budgets: []model.BudgetWithCategories{{
			Budget: model.Budget{
				Title:       "Food",
				StartDate:   start,
				EndDate:     start.AddDate(0, 1, 0),
				Amount:      decimal.NewFromInt(50),
				AmountSpent: decimal.NewFromInt(40),
				Currency:    "USD",
			},
			Categories: []model.Category{{Title: "Groceries"}, {Title: "Dining"}},
		}},
	}

	tables := l.Tables()
	require.Len(t, tables, 5)

	names := make([]string, len(tables))
	for i, tbl := range tables {
		names[i] = tbl.Name
		for _, row := range tbl.Rows {
			assert.Len(t, row, len(tbl.Header), tbl.Name)
		}
	}
	assert.Equal(t, []string{SummaryTable, TransactionsTable, BudgetsTable, AccountsTable, CategoriesTable}, names)

	budgets := tables[2]
	assert.Equal(t, "Groceries, Dining", budgets.Rows[0][3])
	assert.True(t, decimal.NewFromInt(10).Equal(budgets.Rows[0][6].(decimal.Decimal)))

	accounts := tables[3]
	require.Len(t, accounts.Rows, 2)
	assert.Equal(t, "All accounts", accounts.Rows[1][0])
}

func TestCell(t *testing.T) {
	assert.Equal(t, 12.5, Cell(decimal.RequireFromString("12.50")))
	assert.Equal(t, "2024-02-29", Cell(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-02-29 13:45:00", Cell(time.Date(2024, 2, 29, 13, 45, 0, 0, time.UTC)))
	assert.Equal(t, "", Cell(time.Time{}))
	assert.Equal(t, 3, Cell(3))
	assert.Equal(t, "x", Cell("x"))
}
