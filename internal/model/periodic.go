package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodicTransaction is a template that produces a transaction every time it falls due.
// An IntervalLength of zero means the template fires once and is removed.
type PeriodicTransaction struct {
	NextTransaction    time.Time
	Amount             decimal.Decimal
	RecipientAccountID *int64
	Title              string
	Currency           string
	Type               TransactionType
	Interval           Interval
	ID                 int64
	SenderAccountID    int64
	CategoryID         int64
	IntervalLength     int
}

// Due reports whether the template should fire at now.
func (p *PeriodicTransaction) Due(now time.Time) bool {
	return !p.NextTransaction.After(now)
}

// OneShot reports whether the template is removed after firing.
func (p *PeriodicTransaction) OneShot() bool {
	return p.IntervalLength == 0
}

// FollowingDate is the due date after the current one.
func (p *PeriodicTransaction) FollowingDate() time.Time {
	return Advance(p.NextTransaction, p.Interval, p.IntervalLength)
}

// Instance builds the transaction this template produces at its current due date.
// The converted amount is left for the ledger to fill in.
func (p *PeriodicTransaction) Instance() Transaction {
	var recipient *int64
	if p.RecipientAccountID != nil {
		id := *p.RecipientAccountID
		recipient = &id
	}
	return Transaction{
		Type:               p.Type,
		Title:              p.Title,
		Amount:             p.Amount,
		Currency:           p.Currency,
		SenderAccountID:    p.SenderAccountID,
		RecipientAccountID: recipient,
		CategoryID:         p.CategoryID,
		Timestamp:          p.NextTransaction,
	}
}

// Validate checks the template fields.
func (p *PeriodicTransaction) Validate() error {
	instance := p.Instance()
	if err := instance.Validate(); err != nil {
		return err
	}
	if p.IntervalLength < 0 {
		return &ValidationError{Field: "interval_length", Message: "cannot be negative"}
	}
	if p.IntervalLength > 0 && !p.Interval.Valid() {
		return &ValidationError{Field: "interval", Message: "is required for repeating templates"}
	}
	return nil
}

// PeriodicTransactionExpanded is a template joined with its accounts and category.
type PeriodicTransactionExpanded struct {
	Recipient *Account
	Sender    Account
	Category  Category
	PeriodicTransaction
}
