package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Zhima-Mochi/cafeshop/internal/domain/cart"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/order"
	"github.com/stretchr/testify/assert"
)

func TestStatusText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "OK"},
		{NewValidation("member id is required"), "VALIDATION_FAILED"},
		{fmt.Errorf("%w: %w", ErrValidation, cart.ErrEmpty), "CART_EMPTY"},
		{inventory.NewInsufficientStockError("coffee-1"), "INSUFFICIENT_STOCK"},
		{order.ErrCancellationRefused, "CANCELLATION_REFUSED"},
		{fmt.Errorf("%w: PLACED -> DELIVERED", order.ErrInvalidTransition), "INVALID_TRANSITION"},
		{errors.New("disk I/O error"), "INTERNAL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusText(tt.err))
	}
}

func TestWrapRepositoryError(t *testing.T) {
	assert.NoError(t, WrapRepositoryError(nil))

	domainErr := fmt.Errorf("load: %w", order.ErrNotFound)
	assert.Same(t, domainErr, WrapRepositoryError(domainErr))

	wrapped := WrapRepositoryError(errors.New("database is locked"))
	assert.ErrorIs(t, wrapped, ErrRepository)
	assert.Contains(t, wrapped.Error(), "database is locked")
}
