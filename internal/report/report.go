// Package report assembles a read-only snapshot of the ledger for a date range.
// Exporters render it; nothing here writes to storage.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// CategoryTotal sums the transactions of one category inside the range.
type CategoryTotal struct {
	Category model.Category
	Expenses decimal.Decimal
	Income   decimal.Decimal
	Count    int
}

// Net is income minus expenses.
func (c CategoryTotal) Net() decimal.Decimal {
	return c.Income.Sub(c.Expenses)
}

// Ledger is everything an exporter needs for one period.
type Ledger struct {
	Start         time.Time
	End           time.Time
	GeneratedAt   time.Time
	TotalIncome   decimal.Decimal
	TotalExpenses decimal.Decimal
	NetBalance    decimal.Decimal
	Aggregate     *model.Account
	Accounts      []model.Account
	Budgets       []model.BudgetWithCategories
	Transactions  []model.TransactionExpanded
	ByCategory    []CategoryTotal
}

// Build loads accounts, budgets overlapping [start, end) and the transactions
// in [start, end) concurrently, then computes totals. aggregateID names the
// aggregate account, which is reported separately from the others.
func Build(ctx context.Context, store service.Queries, aggregateID int64, start, end time.Time) (*Ledger, error) {
	if !end.After(start) {
		return nil, &model.ValidationError{Field: "end", Message: "must be after the start"}
	}

	l := &Ledger{
		Start:       start,
		End:         end,
		GeneratedAt: time.Now().UTC(),
	}

	var (
		accounts []model.Account
		budgets  []model.BudgetWithCategories
		txns     []model.TransactionExpanded
		net      decimal.Decimal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = store.ListAccounts(gctx, service.AccountFilter{})
		if err != nil {
			return fmt.Errorf("load accounts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		budgets, err = store.ListBudgetsWithCategories(gctx, service.BudgetFilter{})
		if err != nil {
			return fmt.Errorf("load budgets: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		txns, err = store.ListTransactionsExpanded(gctx, service.TransactionFilter{StartDate: &start, EndDate: &end})
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		net, err = store.SumAccountBalances(gctx, aggregateID)
		if err != nil {
			return fmt.Errorf("sum balances: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range accounts {
		if accounts[i].ID == aggregateID {
			agg := accounts[i]
			l.Aggregate = &agg
			continue
		}
		l.Accounts = append(l.Accounts, accounts[i])
	}

	for _, b := range budgets {
		if b.StartDate.Before(end) && b.EndDate.After(start) {
			l.Budgets = append(l.Budgets, b)
		}
	}

	l.Transactions = txns
	l.NetBalance = net
	l.summarize()
	return l, nil
}

func (l *Ledger) summarize() {
	totals := make(map[int64]*CategoryTotal)
	l.TotalIncome = decimal.Zero
	l.TotalExpenses = decimal.Zero

	for _, t := range l.Transactions {
		ct, ok := totals[t.Category.ID]
		if !ok {
			ct = &CategoryTotal{Category: t.Category, Expenses: decimal.Zero, Income: decimal.Zero}
			totals[t.Category.ID] = ct
		}
		ct.Count++

		switch t.Type {
		case model.TypeExpense:
			ct.Expenses = ct.Expenses.Add(t.AmountConverted)
			l.TotalExpenses = l.TotalExpenses.Add(t.AmountConverted)
		case model.TypeIncome:
			ct.Income = ct.Income.Add(t.AmountConverted)
			l.TotalIncome = l.TotalIncome.Add(t.AmountConverted)
		}
	}

	l.ByCategory = make([]CategoryTotal, 0, len(totals))
	for _, ct := range totals {
		l.ByCategory = append(l.ByCategory, *ct)
	}
	// Biggest spenders first, then by name for a stable order.
	sort.Slice(l.ByCategory, func(i, j int) bool {
		a, b := l.ByCategory[i], l.ByCategory[j]
		if !a.Expenses.Equal(b.Expenses) {
			return a.Expenses.GreaterThan(b.Expenses)
		}
		return a.Category.Title < b.Category.Title
	})
}
