// Package model defines the ledger entities: accounts, categories, budgets,
// transactions and periodic templates, plus their validation rules.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds money in a single currency.
type Account struct {
	CreatedAt time.Time
	Balance   decimal.Decimal
	Title     string
	Currency  string
	ID        int64
	Color     int
	SortOrder int
}

// Validate checks the user-editable fields.
func (a *Account) Validate() error {
	if err := validateTitle("title", a.Title); err != nil {
		return err
	}
	return validateCurrency("currency", a.Currency)
}
