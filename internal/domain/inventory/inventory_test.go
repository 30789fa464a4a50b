package inventory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewItemDerivesStatus(t *testing.T) {
	tests := []struct {
		name  string
		stock int
		want  SaleStatus
	}{
		{name: "in stock", stock: 5, want: StatusOnSale},
		{name: "empty", stock: 0, want: StatusSoldOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := NewItem("coffee-1", "Coffee", 1000, tt.stock)
			require.NoError(t, err)
			assert.Equal(t, tt.want, item.Status)
		})
	}
}

func TestNewItemValidates(t *testing.T) {
	_, err := NewItem("coffee-1", "Coffee", -1, 1)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = NewItem("coffee-1", "Coffee", 1, -1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAvailable(t *testing.T) {
	item := &Item{ID: "tea-1", Stock: 2, Status: StatusOnSale}
	assert.True(t, item.Available(2))
	assert.False(t, item.Available(3))

	item.Status = StatusSoldOut
	assert.False(t, item.Available(1))
}

func TestInsufficientStockErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("place order: %w", NewInsufficientStockError("tea-1", "coffee-1"))

	assert.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, []string{"coffee-1", "tea-1"}, stockErr.ItemIDs)
	assert.Contains(t, err.Error(), "coffee-1, tea-1")
}
