package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/tally/internal/common"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidDateRange = errors.New("start date must be before end date")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateID ensures a row id is positive.
func validateID(id int64, paramName string) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s=%d", ErrInvalidID, paramName, id)
	}
	return nil
}

// validateNotNil ensures a pointer parameter was supplied.
func validateNotNil[T any](v *T, paramName string) error {
	if v == nil {
		return fmt.Errorf("%w: %s", ErrNilParameter, paramName)
	}
	return nil
}

// Constraint errors.
var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrDuplicateImport    = fmt.Errorf("%w: transaction already imported", common.ErrDuplicateEntry)
)
