package order

import "time"

type LineSnapshot struct {
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// OrderPlacedEvent is emitted once an order and its reservations are committed.
type OrderPlacedEvent struct {
	OrderID    string         `json:"order_id"`
	OrderRef   string         `json:"order_ref"`
	MemberID   string         `json:"member_id"`
	Total      int64          `json:"total"`
	Lines      []LineSnapshot `json:"lines"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func (OrderPlacedEvent) EventName() string { return "order.placed" }

func (e OrderPlacedEvent) EventKey() string { return e.OrderID }

func NewOrderPlacedEvent(o *Order) OrderPlacedEvent {
	lines := make([]LineSnapshot, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, LineSnapshot{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return OrderPlacedEvent{
		OrderID:    o.ID,
		OrderRef:   o.Reference,
		MemberID:   o.MemberID,
		Total:      o.Total,
		Lines:      lines,
		OccurredAt: time.Now().UTC(),
	}
}

// OrderStatusChangedEvent is emitted after any committed transition past placement.
type OrderStatusChangedEvent struct {
	OrderID    string    `json:"order_id"`
	OrderRef   string    `json:"order_ref"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Cause      Cause     `json:"cause"`
	Total      int64     `json:"total"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (OrderStatusChangedEvent) EventName() string { return "order.status_changed" }

func (e OrderStatusChangedEvent) EventKey() string { return e.OrderID }

// NewOrderStatusChangedEvent describes the latest history entry of o.
func NewOrderStatusChangedEvent(o *Order) OrderStatusChangedEvent {
	evt := OrderStatusChangedEvent{
		OrderID:    o.ID,
		OrderRef:   o.Reference,
		To:         o.Status,
		Total:      o.Total,
		OccurredAt: time.Now().UTC(),
	}
	if n := len(o.History); n > 0 {
		last := o.History[n-1]
		evt.From, evt.Cause = last.From, last.Cause
	}
	return evt
}
