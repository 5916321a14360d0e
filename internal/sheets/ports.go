package sheets

import (
	"context"

	"tally/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionMirror keeps a human-readable copy of the ledger outside the
	// store. It is never read back.
	TransactionMirror interface {
		// AppendTransaction adds one row for tx. Appending an id that is
		// already mirrored is a no-op.
		AppendTransaction(ctx context.Context, tx core.Transaction) error
		// RemoveTransaction deletes the row for id. A missing row is not an error.
		RemoveTransaction(ctx context.Context, id string) error
	}
)

// Row renders tx in the column order used by every mirror:
// id, owner, date, type, category, icon, description, amount.
func Row(tx core.Transaction) []any {
	return []any{
		tx.ID,
		tx.Owner,
		tx.Date.UTC().Format("2006-01-02"),
		string(tx.Type),
		tx.Category,
		tx.CategoryIcon,
		tx.Description,
		tx.Amount.String(),
	}
}
