package common

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/tally/internal/service"
)

// WithTx runs fn inside one storage transaction, committing on success and
// rolling back on any error.
func WithTx(ctx context.Context, store service.Storage, fn func(tx service.Tx) error) (err error) {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
