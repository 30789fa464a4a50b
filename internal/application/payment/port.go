package payment

import (
	"context"

	dompay "github.com/Zhima-Mochi/cafeshop/internal/domain/payment"
)

// Gateway is an outbound port for the external payment gateway.
// It belongs to the application layer to express use-case dependencies.
type Gateway interface {
	// Prepare registers the amount expected for orderRef before the client pays.
	Prepare(ctx context.Context, orderRef string, amount int64) error
	// Cancel returns amount of the captured payment for orderRef.
	Cancel(ctx context.Context, orderRef string, amount int64, reason string) error
	// Lookup returns the authoritative record of a transaction.
	Lookup(ctx context.Context, transactionID string) (*dompay.Payment, error)
}
