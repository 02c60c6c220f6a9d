package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Budget caps spending in a set of categories over the half-open window [StartDate, EndDate).
// Budgets that share a BudgetSet form one recurrence lineage.
type Budget struct {
	StartDate      time.Time
	EndDate        time.Time
	Amount         decimal.Decimal
	AmountSpent    decimal.Decimal
	BudgetSet      string
	Title          string
	Currency       string
	Interval       Interval
	ID             int64
	IntervalLength int
}

// BudgetCategory links a budget to one category.
type BudgetCategory struct {
	BudgetID   int64
	CategoryID int64
}

// BudgetWithCategories is a budget joined with its linked categories.
type BudgetWithCategories struct {
	Categories []Category
	Budget
}

// Contains reports whether ts falls inside the budget window.
func (b *Budget) Contains(ts time.Time) bool {
	return !ts.Before(b.StartDate) && ts.Before(b.EndDate)
}

// Recurring reports whether the budget renews when it ends.
func (b *Budget) Recurring() bool {
	return b.IntervalLength > 0
}

// Remaining is the amount left before the limit is reached. It may be negative.
func (b *Budget) Remaining() decimal.Decimal {
	return b.Amount.Sub(b.AmountSpent)
}

// Validate checks the user-editable fields.
func (b *Budget) Validate() error {
	if err := validateTitle("title", b.Title); err != nil {
		return err
	}
	if err := validateCurrency("currency", b.Currency); err != nil {
		return err
	}
	if b.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Message: "cannot be negative"}
	}
	if b.StartDate.IsZero() || b.EndDate.IsZero() {
		return &ValidationError{Field: "dates", Message: "start and end dates are required"}
	}
	if !b.EndDate.After(b.StartDate) {
		return &ValidationError{Field: "end_date", Message: "must be after the start date"}
	}
	if b.IntervalLength < 0 {
		return &ValidationError{Field: "interval_length", Message: "cannot be negative"}
	}
	if b.IntervalLength > 0 && !b.Interval.Valid() {
		return &ValidationError{Field: "interval", Message: "is required for recurring budgets"}
	}
	return nil
}
