package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/cafeshop/internal/domain/order"

	"github.com/jmoiron/sqlx"
)

type orderRow struct {
	ID        string `db:"id"`
	MemberID  string `db:"member_id"`
	Reference string `db:"reference"`
	Status    string `db:"status"`
	Total     int64  `db:"total"`
	Version   int    `db:"version"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

type lineRow struct {
	OrderID   string `db:"order_id"`
	LineNo    int    `db:"line_no"`
	ItemID    string `db:"item_id"`
	ItemName  string `db:"item_name"`
	Quantity  int    `db:"quantity"`
	UnitPrice int64  `db:"unit_price"`
}

type transitionRow struct {
	OrderID string `db:"order_id"`
	From    string `db:"from_status"`
	To      string `db:"to_status"`
	Cause   string `db:"cause"`
	Detail  string `db:"detail"`
	At      int64  `db:"at"`
}

const selectOrders = `SELECT id, member_id, reference, status, total, version, created_at, updated_at FROM orders`

type orderRepo struct {
	q sqlx.ExtContext
}

func (r orderRepo) Insert(ctx context.Context, o *order.Order) error {
	_, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO orders (id, member_id, reference, status, total, version, created_at, updated_at)
		VALUES (:id, :member_id, :reference, :status, :total, :version, :created_at, :updated_at)`,
		orderRow{
			ID:        o.ID,
			MemberID:  o.MemberID,
			Reference: o.Reference,
			Status:    string(o.Status),
			Total:     o.Total,
			Version:   o.Version,
			CreatedAt: toNanos(o.CreatedAt),
			UpdatedAt: toNanos(o.UpdatedAt),
		})
	if err != nil {
		return fmt.Errorf("sqlite: insert order %s: %w", o.ID, err)
	}

	lines := make([]lineRow, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = lineRow{
			OrderID:   o.ID,
			LineNo:    i + 1,
			ItemID:    l.ItemID,
			ItemName:  l.ItemName,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}
	if len(lines) > 0 {
		if _, err := sqlx.NamedExecContext(ctx, r.q, `
			INSERT INTO order_lines (order_id, line_no, item_id, item_name, quantity, unit_price)
			VALUES (:order_id, :line_no, :item_id, :item_name, :quantity, :unit_price)`, lines); err != nil {
			return fmt.Errorf("sqlite: insert lines of %s: %w", o.ID, err)
		}
	}
	return r.appendHistory(ctx, o)
}

// Update writes status and total guarded by the version column.
func (r orderRepo) Update(ctx context.Context, o *order.Order) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE orders SET status = ?, total = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(o.Status), o.Total, toNanos(o.UpdatedAt), o.ID, o.Version)
	if err != nil {
		return fmt.Errorf("sqlite: update order %s: %w", o.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update order %s: %w", o.ID, err)
	}
	if n == 0 {
		var exists int
		if err := sqlx.GetContext(ctx, r.q, &exists, `SELECT COUNT(*) FROM orders WHERE id = ?`, o.ID); err != nil {
			return fmt.Errorf("sqlite: update order %s: %w", o.ID, err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", order.ErrNotFound, o.ID)
		}
		return fmt.Errorf("%w: order %s version %d", order.ErrConflict, o.ID, o.Version)
	}
	o.Version++
	return r.appendHistory(ctx, o)
}

func (r orderRepo) appendHistory(ctx context.Context, o *order.Order) error {
	pending := o.PendingTransitions()
	if len(pending) == 0 {
		return nil
	}
	rows := make([]transitionRow, len(pending))
	for i, t := range pending {
		rows[i] = transitionRow{
			OrderID: o.ID,
			From:    string(t.From),
			To:      string(t.To),
			Cause:   string(t.Cause),
			Detail:  t.Detail,
			At:      toNanos(t.At),
		}
	}
	if _, err := sqlx.NamedExecContext(ctx, r.q, `
		INSERT INTO order_transitions (order_id, from_status, to_status, cause, detail, at)
		VALUES (:order_id, :from_status, :to_status, :cause, :detail, :at)`, rows); err != nil {
		return fmt.Errorf("sqlite: append history of %s: %w", o.ID, err)
	}
	o.MarkPersisted()
	return nil
}

func (r orderRepo) FindByID(ctx context.Context, id string) (*order.Order, error) {
	return r.findOne(ctx, "id", id)
}

func (r orderRepo) FindByReference(ctx context.Context, reference string) (*order.Order, error) {
	return r.findOne(ctx, "reference", reference)
}

func (r orderRepo) findOne(ctx context.Context, column, value string) (*order.Order, error) {
	var row orderRow
	err := sqlx.GetContext(ctx, r.q, &row, selectOrders+" WHERE "+column+" = ?", value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", order.ErrNotFound, value)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find order by %s: %w", column, err)
	}
	orders, err := r.hydrate(ctx, []orderRow{row})
	if err != nil {
		return nil, err
	}
	return orders[0], nil
}

func (r orderRepo) ListByMember(ctx context.Context, memberID string) ([]*order.Order, error) {
	return r.list(ctx, " WHERE member_id = ?", memberID)
}

func (r orderRepo) ListByStatus(ctx context.Context, status order.Status) ([]*order.Order, error) {
	return r.list(ctx, " WHERE status = ?", string(status))
}

func (r orderRepo) ListAll(ctx context.Context) ([]*order.Order, error) {
	return r.list(ctx, "")
}

func (r orderRepo) list(ctx context.Context, where string, args ...any) ([]*order.Order, error) {
	var rows []orderRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, selectOrders+where+" ORDER BY created_at, id", args...); err != nil {
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}
	return r.hydrate(ctx, rows)
}

// hydrate loads lines and history for rows with one query each.
func (r orderRepo) hydrate(ctx context.Context, rows []orderRow) ([]*order.Order, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]string, len(rows))
	byID := make(map[string]*order.Order, len(rows))
	out := make([]*order.Order, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		o := &order.Order{
			ID:        row.ID,
			MemberID:  row.MemberID,
			Reference: row.Reference,
			Status:    order.Status(row.Status),
			Total:     row.Total,
			Version:   row.Version,
			CreatedAt: fromNanos(row.CreatedAt),
			UpdatedAt: fromNanos(row.UpdatedAt),
		}
		byID[row.ID] = o
		out[i] = o
	}

	var lines []lineRow
	if err := r.selectIn(ctx, &lines, `
		SELECT order_id, line_no, item_id, item_name, quantity, unit_price
		FROM order_lines WHERE order_id IN (?) ORDER BY order_id, line_no`, ids); err != nil {
		return nil, fmt.Errorf("sqlite: load order lines: %w", err)
	}
	for _, l := range lines {
		o := byID[l.OrderID]
		o.Lines = append(o.Lines, order.Line{
			ItemID:    l.ItemID,
			ItemName:  l.ItemName,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}

	var history []transitionRow
	if err := r.selectIn(ctx, &history, `
		SELECT order_id, from_status, to_status, cause, detail, at
		FROM order_transitions WHERE order_id IN (?) ORDER BY order_id, id`, ids); err != nil {
		return nil, fmt.Errorf("sqlite: load order history: %w", err)
	}
	for _, t := range history {
		o := byID[t.OrderID]
		o.History = append(o.History, order.Transition{
			From:   order.Status(t.From),
			To:     order.Status(t.To),
			Cause:  order.Cause(t.Cause),
			Detail: t.Detail,
			At:     fromNanos(t.At),
		})
	}
	for _, o := range out {
		o.MarkPersisted()
	}
	return out, nil
}

func (r orderRepo) selectIn(ctx context.Context, dest any, query string, ids []string) error {
	query, args, err := sqlx.In(strings.TrimSpace(query), ids)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, r.q, dest, r.q.Rebind(query), args...)
}
