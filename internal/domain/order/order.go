package order

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrConflict          = errors.New("order: concurrent modification")
	ErrNoLines           = errors.New("order: at least one line is required")
	ErrInvalidQuantity   = errors.New("order: quantity must be greater than zero")
	ErrInvalidAmount     = errors.New("order: amount out of range")
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrAlreadyProcessed  = errors.New("order: event already processed")
	ErrPaymentMismatch   = errors.New("order: payment inconsistent with order")

	ErrCancellationRefused = fmt.Errorf("%w: cancellation refused, contact an administrator", ErrInvalidTransition)
)

// Line is a snapshot of one purchased item. It never changes after assembly.
type Line struct {
	ItemID    string
	ItemName  string
	Quantity  int
	UnitPrice int64
}

func (l Line) Subtotal() int64 { return l.UnitPrice * int64(l.Quantity) }

type Order struct {
	ID        string
	MemberID  string
	Reference string
	Status    Status
	Total     int64
	Lines     []Line
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
	History   []Transition

	persisted int
}

// New assembles a PLACED order, pricing it from the line snapshots.
func New(id, memberID, reference string, lines []Line, now time.Time) (*Order, error) {
	if id == "" || reference == "" {
		return nil, errors.New("order: id and reference are required")
	}
	if memberID == "" {
		return nil, errors.New("order: member id is required")
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	var total int64
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %s", ErrInvalidQuantity, l.ItemID)
		}
		if l.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: item %s", ErrInvalidAmount, l.ItemID)
		}
		total += l.Subtotal()
	}

	now = now.UTC()
	o := &Order{
		ID:        id,
		MemberID:  memberID,
		Reference: reference,
		Status:    StatusPlaced,
		Total:     total,
		Lines:     append([]Line(nil), lines...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.History = append(o.History, Transition{To: StatusPlaced, Cause: CausePlaced, At: now})
	return o, nil
}

// Quantities sums line quantities per item id.
func (o *Order) Quantities() map[string]int {
	out := make(map[string]int, len(o.Lines))
	for _, l := range o.Lines {
		out[l.ItemID] += l.Quantity
	}
	return out
}

// PendingTransitions returns history entries not yet written by a repository.
func (o *Order) PendingTransitions() []Transition {
	if o.persisted >= len(o.History) {
		return nil
	}
	return o.History[o.persisted:]
}

// MarkPersisted records that every history entry has been stored.
func (o *Order) MarkPersisted() {
	o.persisted = len(o.History)
}

func (o *Order) touch(at time.Time) time.Time {
	at = at.UTC()
	if at.Before(o.UpdatedAt) {
		at = o.UpdatedAt
	}
	o.UpdatedAt = at
	return at
}
