package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	time.DateOnly,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.DateTime,
	time.RFC3339,
}

func invalid(field, format string, args ...any) error {
	return &model.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ParseAmount parses a non-negative money amount. A leading currency symbol
// and thousands separators are tolerated.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimLeft(cleaned, "$€£")
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, invalid("amount", "%q is not a number", s)
	}
	if amount.IsNegative() {
		return decimal.Zero, invalid("amount", "must not be negative")
	}
	return amount, nil
}

// ParseDate accepts "now", "today", "yesterday" or one of the ISO layouts.
// Results are UTC; "today" and "yesterday" are midnight.
func ParseDate(s string, now time.Time) (time.Time, error) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "now":
		return now, nil
	case "today":
		return midnight, nil
	case "yesterday":
		return midnight.AddDate(0, 0, -1), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalid("date", "%q is not a date (want YYYY-MM-DD)", s)
}

// ParseType parses expense, income or transfer.
func ParseType(s string) (model.TransactionType, error) {
	return model.ParseTransactionType(s)
}

// ParseInterval parses a recurrence unit such as "month" or "weeks".
func ParseInterval(s string) (model.Interval, error) {
	return model.ParseInterval(s)
}

// ParseID parses a positive row id.
func ParseID(field, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid(field, "%q is not a valid id", s)
	}
	return id, nil
}

// ParseIDList parses a comma separated id list, skipping blanks and duplicates.
func ParseIDList(field, s string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := ParseID(field, part)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
