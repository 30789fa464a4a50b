package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/cafeshop/internal/domain/cart"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/member"
)

// UpsertItem creates or replaces a catalog entry, deriving its sale status.
func (d *DB) UpsertItem(ctx context.Context, it *inventory.Item) error {
	if it.Price < 0 {
		return inventory.ErrInvalidPrice
	}
	if it.Stock < 0 {
		return inventory.ErrInvalidQuantity
	}
	_, err := d.db.NamedExecContext(ctx, `
		INSERT INTO items (id, name, price, stock, status, updated_at)
		VALUES (:id, :name, :price, :stock, :status, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
		    name = excluded.name, price = excluded.price, stock = excluded.stock,
		    status = excluded.status, updated_at = excluded.updated_at`,
		itemRow{
			ID:        it.ID,
			Name:      it.Name,
			Price:     it.Price,
			Stock:     it.Stock,
			Status:    string(inventory.StatusFor(it.Stock)),
			UpdatedAt: time.Now().UnixNano(),
		})
	if err != nil {
		return fmt.Errorf("sqlite: upsert item %s: %w", it.ID, err)
	}
	return nil
}

// SetItemPrice changes the catalog price. Existing order lines keep their snapshot.
func (d *DB) SetItemPrice(ctx context.Context, itemID string, price int64) error {
	if price < 0 {
		return inventory.ErrInvalidPrice
	}
	res, err := d.db.ExecContext(ctx, `UPDATE items SET price = ?, updated_at = ? WHERE id = ?`,
		price, time.Now().UnixNano(), itemID)
	if err != nil {
		return fmt.Errorf("sqlite: set price of %s: %w", itemID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", inventory.ErrNotFound, itemID)
	}
	return nil
}

// Item reads one catalog entry outside any transaction.
func (d *DB) Item(ctx context.Context, itemID string) (*inventory.Item, error) {
	return itemRepo{q: d.db}.Get(ctx, itemID)
}

func (d *DB) UpsertMember(ctx context.Context, m member.Member) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO members (id, email, address) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email, address = excluded.address`,
		m.ID, m.Email, m.Address)
	if err != nil {
		return fmt.Errorf("sqlite: upsert member %s: %w", m.ID, err)
	}
	return nil
}

// PutCartLine sets the quantity of one cart line; zero removes it.
func (d *DB) PutCartLine(ctx context.Context, memberID string, l cart.Line) error {
	if l.Quantity < 0 {
		return inventory.ErrInvalidQuantity
	}
	var err error
	if l.Quantity == 0 {
		_, err = d.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE member_id = ? AND item_id = ?`, memberID, l.ItemID)
	} else {
		_, err = d.db.ExecContext(ctx, `
			INSERT INTO cart_lines (member_id, item_id, quantity) VALUES (?, ?, ?)
			ON CONFLICT (member_id, item_id) DO UPDATE SET quantity = excluded.quantity`,
			memberID, l.ItemID, l.Quantity)
	}
	if err != nil {
		return fmt.Errorf("sqlite: put cart line %s/%s: %w", memberID, l.ItemID, err)
	}
	return nil
}

// Seed is the demo catalog loaded by the seed command.
type Seed struct {
	Members []member.Member
	Items   []inventory.Item
}

var DemoSeed = Seed{
	Members: []member.Member{
		{ID: "member-1", Email: "member-1@cafeshop.test", Address: "12 Bean Street"},
		{ID: "member-2", Email: "member-2@cafeshop.test", Address: "34 Roast Avenue"},
	},
	Items: []inventory.Item{
		{ID: "coffee-1", Name: "House Blend 200g", Price: 1000, Stock: 5},
		{ID: "coffee-2", Name: "Ethiopia Yirgacheffe 200g", Price: 1800, Stock: 20},
		{ID: "coffee-3", Name: "Colombia Supremo 200g", Price: 1500, Stock: 0},
	},
}

// Apply loads s, overwriting rows with the same ids.
func (s Seed) Apply(ctx context.Context, d *DB) error {
	for _, m := range s.Members {
		if err := d.UpsertMember(ctx, m); err != nil {
			return err
		}
	}
	for i := range s.Items {
		if err := d.UpsertItem(ctx, &s.Items[i]); err != nil {
			return err
		}
	}
	return nil
}
