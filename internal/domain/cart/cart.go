package cart

import (
	"context"
	"errors"
)

var ErrEmpty = errors.New("cart: empty")

// Line is one desired (item, quantity) pair in a member's cart.
type Line struct {
	ItemID   string
	Quantity int
}

type Store interface {
	Lines(ctx context.Context, memberID string) ([]Line, error)
	// Clear deletes every line of the member's cart.
	Clear(ctx context.Context, memberID string) error
}

// SameItems reports whether a and b reference the same item ids with the same quantities.
func SameItems(a, b []Line) bool {
	if len(a) != len(b) {
		return false
	}
	want := make(map[string]int, len(a))
	for _, l := range a {
		want[l.ItemID] += l.Quantity
	}
	for _, l := range b {
		want[l.ItemID] -= l.Quantity
	}
	for _, v := range want {
		if v != 0 {
			return false
		}
	}
	return true
}
