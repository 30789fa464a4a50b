package order

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPlaced            Status = "PLACED"
	StatusPaid              Status = "PAID"
	StatusDeliveryPreparing Status = "DELIVERY_PREPARING"
	StatusAwaitingDelivery  Status = "AWAITING_DELIVERY"
	StatusInDelivery        Status = "IN_DELIVERY"
	StatusDelivered         Status = "DELIVERED"
	StatusCancelled         Status = "CANCELLED"
	StatusRefunded          Status = "REFUNDED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPlaced,
	StatusPaid,
	StatusDeliveryPreparing,
	StatusAwaitingDelivery,
	StatusInDelivery,
	StatusDelivered,
	StatusCancelled,
	StatusRefunded,
}

func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRefunded
}

// Effect is the side effect a caller must apply together with a transition.
type Effect uint8

const (
	EffectNone Effect = iota
	EffectReleaseStock
)

// Cause records what drove a transition.
type Cause string

const (
	CausePlaced           Cause = "placed"
	CausePaymentConfirmed Cause = "payment_confirmed"
	CausePaymentMismatch  Cause = "payment_mismatch"
	CauseGatewayCancelled Cause = "gateway_cancelled"
	CauseMemberCancelled  Cause = "member_cancelled"
	CauseAdmin            Cause = "admin"
	CauseSweep            Cause = "delivery_sweep"
)

// Transition is one audit entry of the order history.
type Transition struct {
	From   Status
	To     Status
	Cause  Cause
	Detail string
	At     time.Time
}

var transitions = map[Status]map[Status]Effect{
	StatusPlaced: {
		StatusPaid:      EffectNone,
		StatusCancelled: EffectReleaseStock,
		StatusRefunded:  EffectReleaseStock,
	},
	StatusPaid: {
		StatusDeliveryPreparing: EffectNone,
		StatusAwaitingDelivery:  EffectNone,
		StatusCancelled:         EffectReleaseStock,
		StatusRefunded:          EffectReleaseStock,
	},
	StatusDeliveryPreparing: {
		StatusAwaitingDelivery: EffectNone,
		StatusInDelivery:       EffectNone,
	},
	StatusAwaitingDelivery: {
		StatusInDelivery: EffectNone,
	},
	StatusInDelivery: {
		StatusDelivered: EffectNone,
	},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

func (o *Order) move(to Status, cause Cause, detail string, at time.Time) (Effect, error) {
	effect, ok := transitions[o.Status][to]
	if !ok {
		return EffectNone, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	at = o.touch(at)
	o.History = append(o.History, Transition{From: o.Status, To: to, Cause: cause, Detail: detail, At: at})
	o.Status = to
	return effect, nil
}

// ApplyPayment reconciles a confirmed payment of paid with the order.
// A mismatch on a PLACED or PAID order cancels it; the returned effect must
// still be applied when the error is ErrPaymentMismatch.
func (o *Order) ApplyPayment(paid int64, detail string, at time.Time) (Effect, error) {
	switch {
	case o.Status == StatusPlaced && paid == o.Total:
		return o.move(StatusPaid, CausePaymentConfirmed, detail, at)
	case o.Status == StatusPlaced || o.Status == StatusPaid:
		if o.Status == StatusPaid && paid == o.Total {
			return EffectNone, ErrAlreadyProcessed
		}
		effect, err := o.move(StatusCancelled, CausePaymentMismatch, detail, at)
		if err != nil {
			return EffectNone, err
		}
		return effect, fmt.Errorf("%w: paid %d, total %d", ErrPaymentMismatch, paid, o.Total)
	case o.Status != StatusCancelled && o.Status != StatusRefunded && paid == o.Total:
		return EffectNone, ErrAlreadyProcessed
	default:
		return EffectNone, fmt.Errorf("%w: paid %d for %s order", ErrPaymentMismatch, paid, o.Status)
	}
}

// Cancel terminates an order that has not started shipping. A PAID order is
// refunded in full.
func (o *Order) Cancel(cause Cause, detail string, at time.Time) (Effect, error) {
	switch o.Status {
	case StatusPlaced:
		return o.move(StatusCancelled, cause, detail, at)
	case StatusPaid:
		return o.Refund(o.Total, cause, detail, at)
	case StatusCancelled, StatusRefunded:
		return EffectNone, ErrAlreadyProcessed
	default:
		return EffectNone, ErrCancellationRefused
	}
}

// Refund terminates the order as REFUNDED and lowers the total by amount.
func (o *Order) Refund(amount int64, cause Cause, detail string, at time.Time) (Effect, error) {
	switch o.Status {
	case StatusCancelled, StatusRefunded:
		return EffectNone, ErrAlreadyProcessed
	case StatusPlaced, StatusPaid:
	default:
		return EffectNone, ErrCancellationRefused
	}
	if amount < 0 || amount > o.Total {
		return EffectNone, fmt.Errorf("%w: refund %d of %d", ErrInvalidAmount, amount, o.Total)
	}
	effect, err := o.move(StatusRefunded, cause, detail, at)
	if err != nil {
		return EffectNone, err
	}
	o.Total -= amount
	return effect, nil
}

// AdjustRefund lowers a REFUNDED order's total to remaining, what the gateway
// still holds after a further partial cancellation. The status does not change.
func (o *Order) AdjustRefund(remaining int64, at time.Time) error {
	if o.Status != StatusRefunded {
		return fmt.Errorf("%w: adjust refund of %s order", ErrInvalidTransition, o.Status)
	}
	if remaining < 0 {
		return fmt.Errorf("%w: remaining %d", ErrInvalidAmount, remaining)
	}
	if remaining >= o.Total {
		return ErrAlreadyProcessed
	}
	o.touch(at)
	o.Total = remaining
	return nil
}

// Advance performs a forward delivery move. Terminating moves go through
// Cancel or Refund.
func (o *Order) Advance(to Status, cause Cause, detail string, at time.Time) error {
	if to == StatusCancelled || to == StatusRefunded || to == StatusPaid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	_, err := o.move(to, cause, detail, at)
	return err
}

// NextDeliveryStatus picks the admin's default next step. A PAID order confirmed
// before cutoffHour (in at's location) skips preparation.
func NextDeliveryStatus(current Status, at time.Time, cutoffHour int) (Status, error) {
	switch current {
	case StatusPaid:
		if at.Hour() < cutoffHour {
			return StatusAwaitingDelivery, nil
		}
		return StatusDeliveryPreparing, nil
	case StatusDeliveryPreparing:
		return StatusAwaitingDelivery, nil
	case StatusAwaitingDelivery:
		return StatusInDelivery, nil
	case StatusInDelivery:
		return StatusDelivered, nil
	default:
		return "", fmt.Errorf("%w: no delivery step after %s", ErrInvalidTransition, current)
	}
}
