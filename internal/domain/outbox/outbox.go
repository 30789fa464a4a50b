// Package outbox defines domain events and the in-process bus ports that carry them.
package outbox

import "context"

// Event is a fact recorded by an aggregate, named like "order.placed".
type Event interface {
	EventName() string
}

// Keyed events carry a partition key, usually the aggregate id.
type Keyed interface {
	EventKey() string
}

// KeyOf returns e's partition key, or "" when e is not Keyed.
func KeyOf(e Event) string {
	if k, ok := e.(Keyed); ok {
		return k.EventKey()
	}
	return ""
}

type Handler func(ctx context.Context, e Event) error

// Publisher enqueues events for asynchronous handling. Publish returns once the
// event is queued, not handled.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers by event name. Every handler of a name sees every event.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
