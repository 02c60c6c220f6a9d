package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func validTransaction() Transaction {
	return Transaction{
		Type:            TypeExpense,
		Title:           "Groceries",
		Amount:          decimal.NewFromInt(20),
		Currency:        "USD",
		SenderAccountID: 2,
		CategoryID:      1,
		Timestamp:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		mutate  func(*Transaction)
		name    string
		field   string
		wantErr bool
	}{
		{name: "valid expense", mutate: func(*Transaction) {}},
		{name: "missing title", mutate: func(tx *Transaction) { tx.Title = " " }, wantErr: true, field: "title"},
		{name: "lower-case currency", mutate: func(tx *Transaction) { tx.Currency = "usd" }, wantErr: true, field: "currency"},
		{name: "zero amount", mutate: func(tx *Transaction) { tx.Amount = decimal.Zero }, wantErr: true, field: "amount"},
		{name: "unknown type", mutate: func(tx *Transaction) { tx.Type = "refund" }, wantErr: true, field: "type"},
		{name: "missing category", mutate: func(tx *Transaction) { tx.CategoryID = 0 }, wantErr: true, field: "category"},
		{
			name:    "transfer without recipient",
			mutate:  func(tx *Transaction) { tx.Type = TypeTransfer },
			wantErr: true,
			field:   "recipient_account",
		},
		{
			name: "transfer to self",
			mutate: func(tx *Transaction) {
				tx.Type = TypeTransfer
				tx.RecipientAccountID = int64Ptr(tx.SenderAccountID)
			},
			wantErr: true,
			field:   "recipient_account",
		},
		{
			name: "valid transfer",
			mutate: func(tx *Transaction) {
				tx.Type = TypeTransfer
				tx.RecipientAccountID = int64Ptr(3)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := validTransaction()
			tt.mutate(&txn)
			err := txn.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestTransactionType_Sign(t *testing.T) {
	assert.Equal(t, -1, TypeExpense.Sign())
	assert.Equal(t, 1, TypeIncome.Sign())
	assert.Equal(t, 0, TypeTransfer.Sign())
	assert.False(t, TypeTransfer.Postable())
}

func TestTransaction_BalanceDelta(t *testing.T) {
	txn := validTransaction()
	txn.AmountConverted = decimal.RequireFromString("12.50")
	assert.True(t, txn.BalanceDelta().Equal(decimal.RequireFromString("-12.50")))

	txn.Type = TypeIncome
	assert.True(t, txn.BalanceDelta().Equal(decimal.RequireFromString("12.50")))
}

func TestTransaction_GenerateImportHash(t *testing.T) {
	a := validTransaction()
	b := validTransaction()
	assert.Equal(t, a.GenerateImportHash("FIT1"), b.GenerateImportHash("FIT1"))
	assert.NotEqual(t, a.GenerateImportHash("FIT1"), a.GenerateImportHash("FIT2"))
}

func TestBudget_Contains(t *testing.T) {
	b := Budget{StartDate: date(2024, 3, 1), EndDate: date(2024, 4, 1)}
	assert.True(t, b.Contains(date(2024, 3, 1)))
	assert.True(t, b.Contains(date(2024, 3, 31)))
	assert.False(t, b.Contains(date(2024, 4, 1)))
	assert.False(t, b.Contains(date(2024, 2, 29)))
}

func TestPeriodicTransaction_Instance(t *testing.T) {
	p := PeriodicTransaction{
		Type:               TypeTransfer,
		Title:              "Savings",
		Amount:             decimal.NewFromInt(50),
		Currency:           "EUR",
		SenderAccountID:    2,
		RecipientAccountID: int64Ptr(3),
		CategoryID:         4,
		NextTransaction:    date(2024, 1, 31),
		Interval:           IntervalMonths,
		IntervalLength:     1,
	}

	txn := p.Instance()
	assert.Equal(t, p.NextTransaction, txn.Timestamp)
	assert.True(t, txn.AmountConverted.IsZero())
	require.NotNil(t, txn.RecipientAccountID)
	assert.Equal(t, int64(3), *txn.RecipientAccountID)
	assert.Equal(t, date(2024, 2, 29), p.FollowingDate())
	assert.False(t, p.OneShot())
}
