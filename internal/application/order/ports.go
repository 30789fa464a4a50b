package order

import (
	"context"
	"time"
)

type IDGenerator interface {
	NewID() string
}

// ReferenceGenerator issues the opaque token shared with the payment gateway.
type ReferenceGenerator interface {
	NewReference(now time.Time) string
}

// PaymentGateway is the subset of the gateway the order flows call.
type PaymentGateway interface {
	Prepare(ctx context.Context, orderRef string, amount int64) error
	Cancel(ctx context.Context, orderRef string, amount int64, reason string) error
}
