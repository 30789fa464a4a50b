package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"

	"github.com/jmoiron/sqlx"
)

type itemRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Price     int64  `db:"price"`
	Stock     int    `db:"stock"`
	Status    string `db:"status"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r itemRow) toDomain() *inventory.Item {
	return &inventory.Item{
		ID:        r.ID,
		Name:      r.Name,
		Price:     r.Price,
		Stock:     r.Stock,
		Status:    inventory.SaleStatus(r.Status),
		UpdatedAt: fromNanos(r.UpdatedAt),
	}
}

const selectItem = `SELECT id, name, price, stock, status, updated_at FROM items WHERE id = ?`

// itemRepo is the stock ledger. Every stock write is a single conditional
// UPDATE, so stock can never go negative.
type itemRepo struct {
	q sqlx.ExtContext
}

func (r itemRepo) Get(ctx context.Context, itemID string) (*inventory.Item, error) {
	var row itemRow
	if err := sqlx.GetContext(ctx, r.q, &row, selectItem, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", inventory.ErrNotFound, itemID)
		}
		return nil, fmt.Errorf("sqlite: get item %s: %w", itemID, err)
	}
	return row.toDomain(), nil
}

func (r itemRepo) ReadForUpdate(ctx context.Context, itemID string) (*inventory.Item, error) {
	return r.Get(ctx, itemID)
}

func (r itemRepo) TryReserve(ctx context.Context, itemID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, inventory.ErrInvalidQuantity
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE items
		SET stock = stock - ?,
		    status = CASE WHEN stock - ? <= 0 THEN 'SOLD_OUT' ELSE 'ON_SALE' END,
		    updated_at = ?
		WHERE id = ? AND status = 'ON_SALE' AND stock >= ?`,
		qty, qty, time.Now().UnixNano(), itemID, qty)
	if err != nil {
		return false, fmt.Errorf("sqlite: reserve item %s: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: reserve item %s: %w", itemID, err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, itemID); err != nil {
		return false, err
	}
	return false, nil
}

func (r itemRepo) Release(ctx context.Context, itemID string, qty int) error {
	if qty <= 0 {
		return inventory.ErrInvalidQuantity
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE items SET stock = stock + ?, status = 'ON_SALE', updated_at = ?
		WHERE id = ?`,
		qty, time.Now().UnixNano(), itemID)
	if err != nil {
		return fmt.Errorf("sqlite: release item %s: %w", itemID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("sqlite: release item %s: %w", itemID, err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", inventory.ErrNotFound, itemID)
	}
	return nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixNano()
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
