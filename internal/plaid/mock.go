package plaid

import (
	"context"
	"time"

	"github.com/Veraticus/tally/internal/importer"
)

// MockClient is a TransactionFetcher for tests.
type MockClient struct {
	GetTransactionsFn func(ctx context.Context, startDate, endDate time.Time) ([]importer.Record, error)
	GetAccountsFn     func(ctx context.Context) ([]string, error)

	GetTransactionsCalls []GetTransactionsCall
	GetAccountsCalls     int
}

// GetTransactionsCall records the parameters of a GetTransactions call.
type GetTransactionsCall struct {
	StartDate time.Time
	EndDate   time.Time
}

// NewMockClient creates a new mock Plaid client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// GetTransactions records the call and returns GetTransactionsFn's result, or nothing.
func (m *MockClient) GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]importer.Record, error) {
	m.GetTransactionsCalls = append(m.GetTransactionsCalls, GetTransactionsCall{
		StartDate: startDate,
		EndDate:   endDate,
	})

	if m.GetTransactionsFn != nil {
		return m.GetTransactionsFn(ctx, startDate, endDate)
	}
	return nil, nil
}

// GetAccounts records the call and returns GetAccountsFn's result, or nothing.
func (m *MockClient) GetAccounts(ctx context.Context) ([]string, error) {
	m.GetAccountsCalls++

	if m.GetAccountsFn != nil {
		return m.GetAccountsFn(ctx)
	}
	return nil, nil
}

// Reset clears all call tracking.
func (m *MockClient) Reset() {
	m.GetTransactionsCalls = nil
	m.GetAccountsCalls = 0
}

var _ TransactionFetcher = (*MockClient)(nil)
