package ledger

import (
	"context"
	"fmt"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/service"
)

// DeleteAccount removes an account that nothing references.
// The aggregate account can never be deleted.
func (e *Engine) DeleteAccount(ctx context.Context, id int64) error {
	if id == e.aggregateAccountID {
		return fmt.Errorf("%w: account %d is the aggregate account", common.ErrProtectedAccount, id)
	}

	return e.Atomically(ctx, func(tx service.Tx) error {
		refs, err := tx.CountAccountReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: account %d has %d references", common.ErrAccountInUse, id, refs)
		}
		return tx.DeleteAccount(ctx, id)
	})
}

// DeleteCategory removes a category that no transaction or template uses.
// Budget links to it are dropped.
func (e *Engine) DeleteCategory(ctx context.Context, id int64) error {
	return e.Atomically(ctx, func(tx service.Tx) error {
		refs, err := tx.CountCategoryReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: category %d has %d references", common.ErrCategoryInUse, id, refs)
		}
		return tx.DeleteCategory(ctx, id)
	})
}
