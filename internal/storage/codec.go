package storage

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/Veraticus/tally/internal/common"
)

// timeLayout is fixed width so that lexical order in SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timeScanner reads a column written by formatTime.
type timeScanner struct {
	dst *time.Time
}

func scanTime(dst *time.Time) sql.Scanner {
	return &timeScanner{dst: dst}
}

func (s *timeScanner) Scan(value any) error {
	switch v := value.(type) {
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	case time.Time:
		*s.dst = v.UTC()
		return nil
	case nil:
		*s.dst = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into time", value)
	}
}

func (s *timeScanner) parse(v string) error {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return fmt.Errorf("failed to parse time %q: %w", v, err)
		}
	}
	*s.dst = t.UTC()
	return nil
}

// nullableID maps an optional foreign key to a driver value.
func nullableID(id *int64) driver.Value {
	if id == nil {
		return nil
	}
	return *id
}

func idFromNull(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// nullableString stores empty strings as NULL.
func nullableString(s string) driver.Value {
	if s == "" {
		return nil
	}
	return s
}

// notFound wraps common.ErrNotFound with the entity that was missing.
func notFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, common.ErrNotFound)
}

// expectOneRow turns a zero-row update or delete into a not-found error.
func expectOneRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}
