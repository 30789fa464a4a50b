package inventory

import "time"

// ItemSoldOutEvent is emitted after a reservation leaves an item with no stock.
type ItemSoldOutEvent struct {
	ItemID     string    `json:"item_id"`
	OrderID    string    `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (ItemSoldOutEvent) EventName() string { return "inventory.sold_out" }

func (e ItemSoldOutEvent) EventKey() string { return e.ItemID }

func NewItemSoldOutEvent(itemID, orderID string) ItemSoldOutEvent {
	return ItemSoldOutEvent{
		ItemID:     itemID,
		OrderID:    orderID,
		OccurredAt: time.Now().UTC(),
	}
}
