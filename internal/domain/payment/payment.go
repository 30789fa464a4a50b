package payment

import (
	"errors"
	"time"
)

var (
	// ErrGatewayFailure covers rejected, failed and timed out gateway calls.
	ErrGatewayFailure = errors.New("payment: gateway failure")
	ErrNotFound       = errors.New("payment: transaction not found")
)

// Status is the gateway-side state of a transaction.
type Status string

const (
	StatusReady     Status = "ready"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusReady, StatusPaid, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Payment is the authoritative record returned by the gateway for a transaction.
type Payment struct {
	TransactionID   string
	OrderRef        string
	Status          Status
	Amount          int64
	CancelledAmount int64
	UpdatedAt       time.Time
}

// Captured is the amount the gateway still holds for the merchant.
func (p Payment) Captured() int64 {
	if p.CancelledAmount >= p.Amount {
		return 0
	}
	return p.Amount - p.CancelledAmount
}

// RejectedEvent asks for a captured amount to be returned because the order
// could not accept it.
type RejectedEvent struct {
	OrderID       string    `json:"order_id"`
	OrderRef      string    `json:"order_ref"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (RejectedEvent) EventName() string { return "payment.rejected" }

func (e RejectedEvent) EventKey() string { return e.OrderID }

func NewRejectedEvent(orderID, orderRef, transactionID string, amount int64, reason string) RejectedEvent {
	return RejectedEvent{
		OrderID:       orderID,
		OrderRef:      orderRef,
		TransactionID: transactionID,
		Amount:        amount,
		Reason:        reason,
		OccurredAt:    time.Now().UTC(),
	}
}
