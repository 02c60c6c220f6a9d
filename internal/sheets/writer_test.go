package sheets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/report"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableValues(t *testing.T) {
	table := report.Table{
		Name:   "Accounts",
		Header: []string{"Title", "Opened", "Balance"},
		Rows: [][]any{
			{"Checking", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), decimal.RequireFromString("80.25")},
		},
	}

	values := tableValues(table)
	require.Len(t, values, 2)
	assert.Equal(t, []any{"Title", "Opened", "Balance"}, values[0])
	assert.Equal(t, []any{"Checking", "2024-01-15", 80.25}, values[1])
}

func TestMissingTabs(t *testing.T) {
	existing := map[string]int64{"Summary": 0, "Accounts": 7}
	got := missingTabs([]string{"Summary", "Transactions", "Accounts", "Budgets"}, existing)
	assert.Equal(t, []string{"Transactions", "Budgets"}, got)
}

func TestFormattingRequests(t *testing.T) {
	reqs := formattingRequests(42, 5)
	require.Len(t, reqs, 3)
	assert.Equal(t, int64(42), reqs[0].RepeatCell.Range.SheetId)
	assert.Equal(t, int64(5), reqs[0].RepeatCell.Range.EndColumnIndex)
	assert.Equal(t, int64(1), reqs[1].UpdateSheetProperties.Properties.GridProperties.FrozenRowCount)
	assert.Equal(t, int64(5), reqs[2].AutoResizeDimensions.Dimensions.EndIndex)
}

func TestTabRange(t *testing.T) {
	assert.Equal(t, "'Budgets'!A1", tabRange("Budgets", "A1"))
}

func TestMockWriter(t *testing.T) {
	var w ReportWriter = NewMockWriter()
	l := &report.Ledger{}
	require.NoError(t, w.Write(context.Background(), l))

	m := w.(*MockWriter)
	assert.Equal(t, 1, m.WriteCallCount)
	assert.Same(t, l, m.LastLedger)

	m.SetWriteError(errors.New("quota exceeded"))
	assert.EqualError(t, m.Write(context.Background(), l), "quota exceeded")
}
