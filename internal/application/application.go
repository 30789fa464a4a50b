package application

import (
	"context"

	"github.com/Zhima-Mochi/cafeshop/internal/domain/cart"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/member"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/order"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// Tx exposes repositories bound to one database transaction.
type Tx interface {
	Members() member.Directory
	Items() inventory.Ledger
	Carts() cart.Store
	Orders() order.Repository
}

// Store runs fn inside a transaction that commits when fn returns nil and
// rolls back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
