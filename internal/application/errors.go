package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/cafeshop/internal/domain/cart"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/member"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/order"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/payment"
)

var (
	ErrValidation = errors.New("validation")
	ErrRepository = errors.New("repository failure")
)

func NewValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

var statusTexts = []struct {
	err    error
	status string
}{
	{cart.ErrEmpty, "CART_EMPTY"},
	{inventory.ErrInvalidQuantity, "QUANTITY_INVALID"},
	{ErrValidation, "VALIDATION_FAILED"},
	{member.ErrNotFound, "MEMBER_NOT_FOUND"},
	{inventory.ErrNotFound, "ITEM_NOT_FOUND"},
	{order.ErrNotFound, "ORDER_NOT_FOUND"},
	{payment.ErrNotFound, "PAYMENT_NOT_FOUND"},
	{inventory.ErrInsufficientStock, "INSUFFICIENT_STOCK"},
	{inventory.ErrLockNotAcquired, "LOCK_TIMEOUT"},
	{payment.ErrGatewayFailure, "PAYMENT_GATEWAY_FAILED"},
	{order.ErrAlreadyProcessed, "ALREADY_PROCESSED"},
	{order.ErrPaymentMismatch, "PAYMENT_INCONSISTENT"},
	{order.ErrCancellationRefused, "CANCELLATION_REFUSED"},
	{order.ErrInvalidTransition, "INVALID_TRANSITION"},
	{order.ErrInvalidAmount, "AMOUNT_INVALID"},
	{order.ErrConflict, "CONFLICT"},
	{context.DeadlineExceeded, "TIMEOUT"},
	{context.Canceled, "CONTEXT_CANCELED"},
	{ErrRepository, "REPOSITORY_FAILED"},
}

// StatusText maps err to the upper-case status recorded on spans and logs.
func StatusText(err error) string {
	if err == nil {
		return "OK"
	}
	for _, s := range statusTexts {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return "INTERNAL"
}

// WrapRepositoryError leaves domain and validation errors untouched and tags
// everything else as a repository failure.
func WrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	for _, s := range statusTexts {
		if errors.Is(err, s.err) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrRepository, err)
}
