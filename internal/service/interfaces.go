// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/shopspring/decimal"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	AccountID  *int64
	CategoryID *int64
	Type       model.TransactionType
	Limit      int
	Offset     int
}

// AccountFilter narrows account listings.
type AccountFilter struct {
	Currency  string
	ExcludeID int64
}

// BudgetFilter narrows budget listings.
type BudgetFilter struct {
	ActiveAt  *time.Time
	Currency  string
	BudgetSet string
}

// Queries is the read/write surface shared by the storage and its transactions.
type Queries interface {
	// Account operations
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]model.Account, error)
	UpdateAccount(ctx context.Context, account *model.Account) error
	DeleteAccount(ctx context.Context, id int64) error
	AdjustAccountBalance(ctx context.Context, id int64, delta decimal.Decimal) error
	CountAccountReferences(ctx context.Context, id int64) (int, error)
	SumAccountBalances(ctx context.Context, excludeID int64) (decimal.Decimal, error)

	// Category operations
	CreateCategory(ctx context.Context, category *model.Category) error
	GetCategory(ctx context.Context, id int64) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	UpdateCategory(ctx context.Context, category *model.Category) error
	DeleteCategory(ctx context.Context, id int64) error
	CountCategoryReferences(ctx context.Context, id int64) (int, error)

	// Budget operations
	CreateBudget(ctx context.Context, budget *model.Budget) error
	GetBudget(ctx context.Context, id int64) (*model.Budget, error)
	ListBudgets(ctx context.Context, filter BudgetFilter) ([]model.Budget, error)
	UpdateBudget(ctx context.Context, budget *model.Budget) error
	DeleteBudget(ctx context.Context, id int64) error
	AdjustBudgetSpent(ctx context.Context, id int64, delta decimal.Decimal) error
	SetBudgetSpent(ctx context.Context, id int64, amount decimal.Decimal) error
	GetBudgetCategories(ctx context.Context, budgetID int64) ([]model.Category, error)
	SetBudgetCategories(ctx context.Context, budgetID int64, categoryIDs []int64) error
	GetBudgetWithCategories(ctx context.Context, id int64) (*model.BudgetWithCategories, error)
	ListBudgetsWithCategories(ctx context.Context, filter BudgetFilter) ([]model.BudgetWithCategories, error)
	FindBudgetsForExpense(ctx context.Context, categoryID int64, ts time.Time) ([]model.Budget, error)
	SumExpensesForBudget(ctx context.Context, budgetID int64) (decimal.Decimal, error)
	LatestBudgetPerSet(ctx context.Context) ([]model.Budget, error)

	// Transaction operations
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, txn *model.Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	GetTransactionExpanded(ctx context.Context, id int64) (*model.TransactionExpanded, error)
	ListTransactionsExpanded(ctx context.Context, filter TransactionFilter) ([]model.TransactionExpanded, error)
	ImportHashExists(ctx context.Context, hash string) (bool, error)

	// Periodic transaction operations
	CreatePeriodic(ctx context.Context, p *model.PeriodicTransaction) error
	GetPeriodic(ctx context.Context, id int64) (*model.PeriodicTransaction, error)
	UpdatePeriodic(ctx context.Context, p *model.PeriodicTransaction) error
	DeletePeriodic(ctx context.Context, id int64) error
	ListPeriodic(ctx context.Context) ([]model.PeriodicTransaction, error)
	ListDuePeriodic(ctx context.Context, now time.Time) ([]model.PeriodicTransaction, error)
	GetPeriodicExpanded(ctx context.Context, id int64) (*model.PeriodicTransactionExpanded, error)
	ListPeriodicExpanded(ctx context.Context) ([]model.PeriodicTransactionExpanded, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	Queries

	// EnsureAggregateAccount returns the aggregate account, creating it with
	// the given id and currency when it does not exist yet.
	EnsureAggregateAccount(ctx context.Context, id int64, currency string) (*model.Account, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}

// Tx represents a database transaction.
type Tx interface {
	Queries
	Commit() error
	Rollback() error
}

// CurrencyConverter turns an amount in one currency into another.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
