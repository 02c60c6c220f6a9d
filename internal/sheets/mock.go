package sheets

import (
	"context"
	"sync"

	"github.com/Veraticus/tally/internal/report"
)

// MockWriter is a mock implementation of ReportWriter for testing.
type MockWriter struct {
	WriteFunc      func(ctx context.Context, l *report.Ledger) error
	LastLedger     *report.Ledger
	WriteCallCount int
	mu             sync.Mutex
}

// NewMockWriter creates a new mock writer.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// Write implements the ReportWriter interface.
func (m *MockWriter) Write(ctx context.Context, l *report.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCallCount++
	m.LastLedger = l

	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, l)
	}
	return nil
}

// SetWriteError configures the mock to return err from every Write call.
func (m *MockWriter) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteFunc = func(context.Context, *report.Ledger) error {
		return err
	}
}
