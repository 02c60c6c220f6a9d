package report

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Table is one tabular section of a report. Cells hold strings, ints,
// time.Time or decimal.Decimal; exporters decide how to render each.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Sheet names used by every exporter.
const (
	SummaryTable      = "Summary"
	TransactionsTable = "Transactions"
	BudgetsTable      = "Budgets"
	AccountsTable     = "Accounts"
	CategoriesTable   = "Categories"
)

// Tables renders the ledger into its sections, in display order.
func (l *Ledger) Tables() []Table {
	return []Table{
		l.summaryTable(),
		l.transactionsTable(),
		l.budgetsTable(),
		l.accountsTable(),
		l.categoriesTable(),
	}
}

func (l *Ledger) summaryTable() Table {
	return Table{
		Name:   SummaryTable,
		Header: []string{"Item", "Value"},
		Rows: [][]any{
			{"Period start", l.Start},
			{"Period end", l.End},
			{"Total income", l.TotalIncome},
			{"Total expenses", l.TotalExpenses},
			{"Net flow", l.TotalIncome.Sub(l.TotalExpenses)},
			{"Net balance", l.NetBalance},
			{"Transactions", len(l.Transactions)},
			{"Generated at", l.GeneratedAt},
		},
	}
}

func (l *Ledger) transactionsTable() Table {
	t := Table{
		Name:   TransactionsTable,
		Header: []string{"Date", "Title", "Type", "Category", "Account", "Amount", "Currency", "Converted"},
		Rows:   make([][]any, 0, len(l.Transactions)),
	}
	for _, txn := range l.Transactions {
		t.Rows = append(t.Rows, []any{
			txn.Timestamp,
			txn.Title,
			string(txn.Type),
			txn.Category.Title,
			txn.Sender.Title,
			txn.Amount,
			txn.Currency,
			txn.AmountConverted,
		})
	}
	return t
}

func (l *Ledger) budgetsTable() Table {
	t := Table{
		Name:   BudgetsTable,
		Header: []string{"Title", "Start", "End", "Categories", "Amount", "Spent", "Remaining", "Currency"},
		Rows:   make([][]any, 0, len(l.Budgets)),
	}
	for _, b := range l.Budgets {
		names := make([]string, len(b.Categories))
		for i, c := range b.Categories {
			names[i] = c.Title
		}
		t.Rows = append(t.Rows, []any{
			b.Title,
			b.StartDate,
			b.EndDate,
			strings.Join(names, ", "),
			b.Amount,
			b.AmountSpent,
			b.Remaining(),
			b.Currency,
		})
	}
	return t
}

func (l *Ledger) accountsTable() Table {
	t := Table{
		Name:   AccountsTable,
		Header: []string{"Title", "Currency", "Balance"},
		Rows:   make([][]any, 0, len(l.Accounts)+1),
	}
	for _, a := range l.Accounts {
		t.Rows = append(t.Rows, []any{a.Title, a.Currency, a.Balance})
	}
	if l.Aggregate != nil {
		t.Rows = append(t.Rows, []any{l.Aggregate.Title, l.Aggregate.Currency, l.Aggregate.Balance})
	}
	return t
}

func (l *Ledger) categoriesTable() Table {
	t := Table{
		Name:   CategoriesTable,
		Header: []string{"Category", "Count", "Income", "Expenses", "Net"},
		Rows:   make([][]any, 0, len(l.ByCategory)),
	}
	for _, c := range l.ByCategory {
		t.Rows = append(t.Rows, []any{c.Category.Title, c.Count, c.Income, c.Expenses, c.Net()})
	}
	return t
}

// Cell converts a table cell into a plain value: decimals become float64 and
// times become ISO dates (or timestamps when they carry a clock).
func Cell(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64()
	case time.Time:
		if x.IsZero() {
			return ""
		}
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.DateTime)
	default:
		return v
	}
}
