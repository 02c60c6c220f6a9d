package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType says how a transaction moves money.
type TransactionType string

const (
	// TypeExpense takes money out of the sender account.
	TypeExpense TransactionType = "expense"
	// TypeIncome puts money into the sender account.
	TypeIncome TransactionType = "income"
	// TypeTransfer moves money between two accounts. It is never stored;
	// the ledger splits it into an income and an expense leg.
	TypeTransfer TransactionType = "transfer"
)

// ParseTransactionType accepts the lower-case type names.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeExpense:
		return TypeExpense, nil
	case TypeIncome:
		return TypeIncome, nil
	case TypeTransfer:
		return TypeTransfer, nil
	default:
		return "", &ValidationError{Field: "type", Message: fmt.Sprintf("unknown transaction type %q", s)}
	}
}

// Valid reports whether t is a known type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeExpense, TypeIncome, TypeTransfer:
		return true
	default:
		return false
	}
}

// Postable reports whether rows of this type can be stored and have effects.
func (t TransactionType) Postable() bool {
	switch t {
	case TypeExpense, TypeIncome:
		return true
	case TypeTransfer:
		return false
	default:
		return false
	}
}

// Sign is -1 for expenses, +1 for income and 0 for anything else.
func (t TransactionType) Sign() int {
	switch t {
	case TypeExpense:
		return -1
	case TypeIncome:
		return 1
	case TypeTransfer:
		return 0
	default:
		return 0
	}
}

// Transaction is a single ledger entry. Amount is in Currency; AmountConverted
// is the same value in the sender account's currency.
type Transaction struct {
	Timestamp          time.Time
	Amount             decimal.Decimal
	AmountConverted    decimal.Decimal
	RecipientAccountID *int64
	Title              string
	Currency           string
	ImportHash         string // Set for rows that came from a statement import
	Type               TransactionType
	ID                 int64
	SenderAccountID    int64
	CategoryID         int64
}

// BalanceDelta is the signed change this transaction makes to its sender account.
func (t *Transaction) BalanceDelta() decimal.Decimal {
	return t.AmountConverted.Mul(decimal.NewFromInt(int64(t.Type.Sign())))
}

// GenerateImportHash creates a stable hash for duplicate detection of imported rows.
func (t *Transaction) GenerateImportHash(externalID string) string {
	data := fmt.Sprintf("%s:%s:%s:%d:%s",
		t.Timestamp.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.Title,
		t.SenderAccountID,
		externalID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// Validate checks the fields a caller must supply before the ledger sees the transaction.
func (t *Transaction) Validate() error {
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown transaction type %q", t.Type)}
	}
	if err := validateTitle("title", t.Title); err != nil {
		return err
	}
	if err := validateCurrency("currency", t.Currency); err != nil {
		return err
	}
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if t.SenderAccountID <= 0 {
		return &ValidationError{Field: "sender_account", Message: "is required"}
	}
	if t.CategoryID <= 0 {
		return &ValidationError{Field: "category", Message: "is required"}
	}
	if t.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "is required"}
	}
	if t.Type == TypeTransfer {
		if t.RecipientAccountID == nil {
			return &ValidationError{Field: "recipient_account", Message: "is required for transfers"}
		}
		if *t.RecipientAccountID == t.SenderAccountID {
			return &ValidationError{Field: "recipient_account", Message: "must differ from the sender"}
		}
	}
	return nil
}

// TransactionExpanded is a transaction joined with its accounts and category.
type TransactionExpanded struct {
	Recipient *Account
	Sender    Account
	Category  Category
	Transaction
}
