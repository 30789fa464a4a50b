package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/cafeshop/internal/domain/cart"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/member"

	"github.com/jmoiron/sqlx"
)

type memberRepo struct {
	q sqlx.ExtContext
}

func (r memberRepo) FindByID(ctx context.Context, id string) (*member.Member, error) {
	var m member.Member
	err := sqlx.GetContext(ctx, r.q, &m, `SELECT id, email, address FROM members WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", member.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find member %s: %w", id, err)
	}
	return &m, nil
}

type cartRepo struct {
	q sqlx.ExtContext
}

type cartLineRow struct {
	ItemID   string `db:"item_id"`
	Quantity int    `db:"quantity"`
}

func (r cartRepo) Lines(ctx context.Context, memberID string) ([]cart.Line, error) {
	var rows []cartLineRow
	if err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT item_id, quantity FROM cart_lines WHERE member_id = ? ORDER BY item_id`, memberID); err != nil {
		return nil, fmt.Errorf("sqlite: cart of %s: %w", memberID, err)
	}
	out := make([]cart.Line, len(rows))
	for i, row := range rows {
		out[i] = cart.Line{ItemID: row.ItemID, Quantity: row.Quantity}
	}
	return out, nil
}

func (r cartRepo) Clear(ctx context.Context, memberID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_lines WHERE member_id = ?`, memberID); err != nil {
		return fmt.Errorf("sqlite: clear cart of %s: %w", memberID, err)
	}
	return nil
}
