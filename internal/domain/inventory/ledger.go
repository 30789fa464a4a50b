package inventory

import "context"

// Ledger is the only write path for Item.Stock. Implementations bind to the
// caller's transaction.
type Ledger interface {
	Get(ctx context.Context, itemID string) (*Item, error)
	// ReadForUpdate returns a snapshot that no other writer can change until
	// the enclosing transaction ends.
	ReadForUpdate(ctx context.Context, itemID string) (*Item, error)
	// TryReserve decrements stock by qty in a single conditional write and
	// reports whether the decrement applied.
	TryReserve(ctx context.Context, itemID string, qty int) (bool, error)
	Release(ctx context.Context, itemID string, qty int) error
}
