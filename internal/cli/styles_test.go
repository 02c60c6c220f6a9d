package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	assert.Contains(t, FormatMoney(decimal.RequireFromString("12.5"), "USD"), "12.50 USD")
	assert.Contains(t, FormatMoney(decimal.RequireFromString("-3"), "EUR"), "-3.00 EUR")
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(
		[]string{"ID", "Title"},
		[][]string{{"1", "Checking"}, {"2", "Savings"}},
	)
	for _, want := range []string{"ID", "Title", "Checking", "Savings"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "Checking"), strings.Index(out, "Savings"))
}

func TestNewProgress(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgress(&buf, 3, "importing")
	for i := 0; i < 3; i++ {
		require.NoError(t, bar.Add(1))
	}
	assert.True(t, bar.IsFinished())

	silent := NewProgress(nil, 1, "quiet")
	require.NoError(t, silent.Add(1))
}
