// Package relay forwards domain events from the in-process bus to external brokers.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domoutbox "github.com/Zhima-Mochi/cafeshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"
	"github.com/Zhima-Mochi/cafeshop/internal/observability/logctx"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Envelope is the wire format shared by every sink.
type Envelope struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Key        string          `json:"key,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(e domoutbox.Event) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("relay: encode %s: %w", e.EventName(), err)
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Name:       e.EventName(),
		OccurredAt: time.Now().UTC(),
		Key:        domoutbox.KeyOf(e),
		Payload:    payload,
	}
	return env, nil
}

// Sink delivers envelopes to one broker.
type Sink interface {
	Name() string
	Send(ctx context.Context, env Envelope) error
	Close() error
}

type Relay struct {
	sinks []Sink
	log   observability.Logger
}

func New(logger observability.Logger, sinks ...Sink) *Relay {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Relay{sinks: sinks, log: logger.With(observability.F("component", "relay"))}
}

func (r *Relay) Enabled() bool { return len(r.sinks) > 0 }

// Attach subscribes the relay to every named event.
func (r *Relay) Attach(sub domoutbox.Subscriber, eventNames ...string) {
	if !r.Enabled() {
		return
	}
	for _, name := range eventNames {
		sub.Subscribe(name, r.Handle)
	}
}

// Handle sends e to every sink; one failing sink does not stop the others.
func (r *Relay) Handle(ctx context.Context, e domoutbox.Event) error {
	env, err := NewEnvelope(e)
	if err != nil {
		return err
	}
	log := logctx.FromOr(ctx, r.log)

	var errs error
	for _, s := range r.sinks {
		if err := s.Send(ctx, env); err != nil {
			log.Warn("relay_send_failed",
				observability.F("sink", s.Name()),
				observability.F("event", env.Name),
				observability.Err(err),
			)
			errs = multierr.Append(errs, fmt.Errorf("relay: %s: %w", s.Name(), err))
			continue
		}
		log.Debug("relay_sent",
			observability.F("sink", s.Name()),
			observability.F("event", env.Name),
			observability.F("envelope_id", env.ID),
		)
	}
	return errs
}

func (r *Relay) Close() error {
	var errs error
	for _, s := range r.sinks {
		errs = multierr.Append(errs, s.Close())
	}
	return errs
}
