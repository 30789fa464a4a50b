package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/Zhima-Mochi/cafeshop/internal/application"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/cart"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/member"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := OpenMigrated(context.Background(), MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, DemoSeed.Apply(context.Background(), d))
	return d
}

func TestMigrate_AppliesOnceAndRollsBack(t *testing.T) {
	ctx := context.Background()
	d, err := Open(ctx, MemoryPath)
	require.NoError(t, err)
	defer d.Close()

	applied, err := d.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0", "1.1.0"}, applied)

	applied, err = d.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	v, err := d.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", v.String())

	reverted, err := d.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", reverted)

	v, err = d.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())

	applied, err = d.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.0"}, applied)
}

func TestLedger_TryReserveNeverOversells(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	var results []bool
	for i := 0; i < 7; i++ {
		err := d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
			ok, err := tx.Items().TryReserve(ctx, "coffee-1", 1)
			results = append(results, ok)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []bool{true, true, true, true, true, false, false}, results)

	it, err := d.Item(ctx, "coffee-1")
	require.NoError(t, err)
	assert.Equal(t, 0, it.Stock)
	assert.Equal(t, inventory.StatusSoldOut, it.Status)
}

func TestLedger_ReleaseRestoresSale(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	err := d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		ok, err := tx.Items().TryReserve(ctx, "coffee-1", 5)
		require.True(t, ok)
		if err != nil {
			return err
		}
		return tx.Items().Release(ctx, "coffee-1", 2)
	})
	require.NoError(t, err)

	it, err := d.Item(ctx, "coffee-1")
	require.NoError(t, err)
	assert.Equal(t, 2, it.Stock)
	assert.Equal(t, inventory.StatusOnSale, it.Status)
}

func TestLedger_Errors(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	err := d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		_, err := tx.Items().TryReserve(ctx, "missing", 1)
		return err
	})
	assert.ErrorIs(t, err, inventory.ErrNotFound)

	err = d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		_, err := tx.Items().TryReserve(ctx, "coffee-1", 0)
		return err
	})
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	err = d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		return tx.Items().Release(ctx, "missing", 1)
	})
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	err := d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		if _, err := tx.Items().TryReserve(ctx, "coffee-1", 3); err != nil {
			return err
		}
		return order.ErrConflict
	})
	require.ErrorIs(t, err, order.ErrConflict)

	it, err := d.Item(ctx, "coffee-1")
	require.NoError(t, err)
	assert.Equal(t, 5, it.Stock)
}

func TestMembersAndCarts(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, d.PutCartLine(ctx, "member-1", cart.Line{ItemID: "coffee-2", Quantity: 2}))
	require.NoError(t, d.PutCartLine(ctx, "member-1", cart.Line{ItemID: "coffee-1", Quantity: 1}))
	require.NoError(t, d.PutCartLine(ctx, "member-1", cart.Line{ItemID: "coffee-2", Quantity: 3}))

	err := d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		m, err := tx.Members().FindByID(ctx, "member-1")
		require.NoError(t, err)
		assert.Equal(t, "member-1@cafeshop.test", m.Email)

		_, err = tx.Members().FindByID(ctx, "nobody")
		assert.ErrorIs(t, err, member.ErrNotFound)

		lines, err := tx.Carts().Lines(ctx, "member-1")
		require.NoError(t, err)
		assert.Equal(t, []cart.Line{{ItemID: "coffee-1", Quantity: 1}, {ItemID: "coffee-2", Quantity: 3}}, lines)

		require.NoError(t, tx.Carts().Clear(ctx, "member-1"))
		lines, err = tx.Carts().Lines(ctx, "member-1")
		require.NoError(t, err)
		assert.Empty(t, lines)
		return nil
	})
	require.NoError(t, err)
}

func newTestOrder(t *testing.T, id, ref string) *order.Order {
	t.Helper()
	o, err := order.New(id, "member-1", ref, []order.Line{
		{ItemID: "coffee-1", ItemName: "House Blend 200g", Quantity: 2, UnitPrice: 1000},
		{ItemID: "coffee-2", ItemName: "Ethiopia Yirgacheffe 200g", Quantity: 1, UnitPrice: 1800},
	}, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return o
}

func TestOrders_InsertAndFind(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	o := newTestOrder(t, "order-1", "ref-1")

	require.NoError(t, d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		return tx.Orders().Insert(ctx, o)
	}))

	require.NoError(t, d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		got, err := tx.Orders().FindByReference(ctx, "ref-1")
		require.NoError(t, err)
		assert.Equal(t, "order-1", got.ID)
		assert.Equal(t, order.StatusPlaced, got.Status)
		assert.Equal(t, int64(3800), got.Total)
		assert.Equal(t, o.Lines, got.Lines)
		require.Len(t, got.History, 1)
		assert.Equal(t, order.CausePlaced, got.History[0].Cause)
		assert.Empty(t, got.PendingTransitions())

		_, err = tx.Orders().FindByID(ctx, "missing")
		assert.ErrorIs(t, err, order.ErrNotFound)
		return nil
	}))
}

func TestOrders_UpdateDetectsStaleVersion(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		return tx.Orders().Insert(ctx, newTestOrder(t, "order-1", "ref-1"))
	}))

	var first, second *order.Order
	require.NoError(t, d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		if first, err = tx.Orders().FindByID(ctx, "order-1"); err != nil {
			return err
		}
		second, err = tx.Orders().FindByID(ctx, "order-1")
		return err
	}))

	_, err := first.ApplyPayment(3800, "tx-1", time.Now())
	require.NoError(t, err)
	require.NoError(t, d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		return tx.Orders().Update(ctx, first)
	}))
	assert.Equal(t, 1, first.Version)

	_, err = second.Cancel(order.CauseMemberCancelled, "", time.Now())
	require.NoError(t, err)
	err = d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		return tx.Orders().Update(ctx, second)
	})
	assert.ErrorIs(t, err, order.ErrConflict)

	require.NoError(t, d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		got, err := tx.Orders().FindByID(ctx, "order-1")
		require.NoError(t, err)
		assert.Equal(t, order.StatusPaid, got.Status)
		assert.Len(t, got.History, 2)
		return nil
	}))
}

func TestOrders_LinesAreImmutable(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		return tx.Orders().Insert(ctx, newTestOrder(t, "order-1", "ref-1"))
	}))

	_, err := d.db.ExecContext(ctx, `UPDATE order_lines SET unit_price = 1 WHERE order_id = ?`, "order-1")
	assert.Error(t, err)

	require.NoError(t, d.SetItemPrice(ctx, "coffee-1", 1200))
	require.NoError(t, d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		got, err := tx.Orders().FindByID(ctx, "order-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), got.Lines[0].UnitPrice)
		return nil
	}))
}

func TestOrders_Lists(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		for _, id := range []string{"order-1", "order-2", "order-3"} {
			if err := tx.Orders().Insert(ctx, newTestOrder(t, id, "ref-"+id)); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		o, err := tx.Orders().FindByID(ctx, "order-2")
		require.NoError(t, err)
		_, err = o.ApplyPayment(o.Total, "tx", time.Now())
		require.NoError(t, err)
		return tx.Orders().Update(ctx, o)
	}))

	require.NoError(t, d.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		all, err := tx.Orders().ListByMember(ctx, "member-1")
		require.NoError(t, err)
		assert.Len(t, all, 3)
		for _, o := range all {
			assert.Len(t, o.Lines, 2)
		}

		paid, err := tx.Orders().ListByStatus(ctx, order.StatusPaid)
		require.NoError(t, err)
		require.Len(t, paid, 1)
		assert.Equal(t, "order-2", paid[0].ID)

		none, err := tx.Orders().ListByMember(ctx, "member-2")
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	}))
}
