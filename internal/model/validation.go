package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrValidation is matched by every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is lets callers test with errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

var currencyCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// NormalizeCurrency upper-cases and trims an ISO-4217 code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateCurrency(field, code string) error {
	if !currencyCodeRe.MatchString(code) {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%q is not a three-letter currency code", code)}
	}
	return nil
}

func validateTitle(field, title string) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: field, Message: "cannot be empty"}
	}
	return nil
}
