// Package memory holds in-process stand-ins for external services.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	dompay "github.com/Zhima-Mochi/cafeshop/internal/domain/payment"

	"github.com/google/uuid"
)

// PaymentGateway simulates the card gateway for local runs and tests.
// Transactions are created by Complete, which plays the customer paying.
type PaymentGateway struct {
	mu       sync.RWMutex
	prepared map[string]int64
	payments map[string]*dompay.Payment
	byRef    map[string]string
	reasons  map[string][]string
	failure  error
	now      func() time.Time
}

func NewPaymentGateway() *PaymentGateway {
	return &PaymentGateway{
		prepared: make(map[string]int64),
		payments: make(map[string]*dompay.Payment),
		byRef:    make(map[string]string),
		reasons:  make(map[string][]string),
		now:      time.Now,
	}
}

// FailWith makes every later Prepare and Cancel fail with err; nil restores normal behavior.
func (g *PaymentGateway) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failure = err
}

func (g *PaymentGateway) Prepare(ctx context.Context, orderRef string, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failure != nil {
		return fmt.Errorf("%w: prepare %s: %w", dompay.ErrGatewayFailure, orderRef, g.failure)
	}
	if amount < 0 {
		return fmt.Errorf("%w: prepare %s: negative amount", dompay.ErrGatewayFailure, orderRef)
	}
	g.prepared[orderRef] = amount
	return nil
}

// Prepared returns the amount registered for orderRef.
func (g *PaymentGateway) Prepared(orderRef string) (int64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	amount, ok := g.prepared[orderRef]
	return amount, ok
}

// Complete records a paid transaction for orderRef. A zero amount pays the
// prepared amount; completing twice returns the same transaction.
func (g *PaymentGateway) Complete(orderRef string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if txID, ok := g.byRef[orderRef]; ok {
		return txID, nil
	}
	prepared, ok := g.prepared[orderRef]
	if !ok {
		return "", fmt.Errorf("%w: no prepared payment for %s", dompay.ErrNotFound, orderRef)
	}
	if amount == 0 {
		amount = prepared
	}
	txID := "imp_" + uuid.NewString()
	g.payments[txID] = &dompay.Payment{
		TransactionID: txID,
		OrderRef:      orderRef,
		Status:        dompay.StatusPaid,
		Amount:        amount,
		UpdatedAt:     g.now().UTC(),
	}
	g.byRef[orderRef] = txID
	return txID, nil
}

func (g *PaymentGateway) Cancel(ctx context.Context, orderRef string, amount int64, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failure != nil {
		return fmt.Errorf("%w: cancel %s: %w", dompay.ErrGatewayFailure, orderRef, g.failure)
	}
	txID, ok := g.byRef[orderRef]
	if !ok {
		// Nothing was captured yet; dropping the prepared amount is enough.
		delete(g.prepared, orderRef)
		return nil
	}
	p := g.payments[txID]
	if amount <= 0 || amount > p.Captured() {
		return fmt.Errorf("%w: cancel %d of %d captured for %s", dompay.ErrGatewayFailure, amount, p.Captured(), orderRef)
	}
	p.CancelledAmount += amount
	p.Status = dompay.StatusCancelled
	p.UpdatedAt = g.now().UTC()
	g.reasons[orderRef] = append(g.reasons[orderRef], reason)
	return nil
}

// Cancellations returns the reasons of every accepted cancel for orderRef.
func (g *PaymentGateway) Cancellations(orderRef string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.reasons[orderRef]...)
}

func (g *PaymentGateway) Lookup(ctx context.Context, transactionID string) (*dompay.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.payments[transactionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dompay.ErrNotFound, transactionID)
	}
	cp := *p
	return &cp, nil
}
