package order

import "context"

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByReference(ctx context.Context, reference string) (*Order, error)
	// Update stores status, total and pending history, failing with ErrConflict
	// when order.Version is stale.
	Update(ctx context.Context, order *Order) error
	ListByMember(ctx context.Context, memberID string) ([]*Order, error)
	ListByStatus(ctx context.Context, status Status) ([]*Order, error)
	ListAll(ctx context.Context) ([]*Order, error)
}
