package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/cafeshop/internal/application"
	appinv "github.com/Zhima-Mochi/cafeshop/internal/application/inventory"
	domorder "github.com/Zhima-Mochi/cafeshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/cafeshop/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/cafeshop/internal/domain/payment"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService        = "payment-service"
	useCaseWebhook        = "payment.webhook"
	peerGateway           = "payment_gateway"
	defaultGatewayTimeout = 3 * time.Second

	// Gateways retry notifications. Settled ones skip the order transaction for a while.
	recentWebhooks   = 4096
	recentWebhookTTL = 10 * time.Minute
)

// HandleWebhookUseCase applies a gateway notification to the order it names.
// The notification only identifies the transaction; amounts and status come
// from a Lookup against the gateway.
type HandleWebhookUseCase struct {
	store     application.Store
	gateway   Gateway
	publisher domoutbox.Publisher
	timeout   time.Duration
	now       func() time.Time
	inst      application.Instruments
	recent    *expirable.LRU[string, WebhookResult]
}

func NewHandleWebhookUseCase(
	store application.Store,
	gateway Gateway,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	gatewayTimeout time.Duration,
) *HandleWebhookUseCase {
	if gatewayTimeout <= 0 {
		gatewayTimeout = defaultGatewayTimeout
	}
	return &HandleWebhookUseCase{
		store:     store,
		gateway:   gateway,
		publisher: publisher,
		timeout:   gatewayTimeout,
		now:       time.Now,
		inst:      application.NewInstruments(tel, paymentService),
		recent:    expirable.NewLRU[string, WebhookResult](recentWebhooks, nil, recentWebhookTTL),
	}
}

type WebhookInput struct {
	TransactionID  string
	OrderRef       string
	Status         string
	CancellationID string
}

type WebhookResult struct {
	OrderID          string
	OrderRef         string
	Status           domorder.Status
	TotalPrice       int64
	AlreadyProcessed bool
}

// settlementKey identifies one authoritative state of a transaction.
func settlementKey(p *dompay.Payment) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", p.TransactionID, p.OrderRef, p.Status, p.Amount, p.CancelledAmount)
}

func (uc *HandleWebhookUseCase) Execute(ctx context.Context, cmd WebhookInput) (_ *WebhookResult, err error) {
	ctx, run := uc.inst.Begin(ctx, useCaseWebhook, "HandleWebhook",
		attribute.String("payment.transaction_id", cmd.TransactionID),
		attribute.String("order.ref", cmd.OrderRef),
		attribute.String("payment.claimed_status", cmd.Status),
	)
	defer func() { run.End(ctx, err) }()

	if cmd.TransactionID == "" {
		run.Fail("TRANSACTION_ID_REQUIRED")
		return nil, application.NewValidation("transaction id is required")
	}
	if cmd.OrderRef == "" {
		run.Fail("ORDER_REF_REQUIRED")
		return nil, application.NewValidation("order reference is required")
	}
	claimed := dompay.Status(cmd.Status)
	if claimed != dompay.StatusPaid && claimed != dompay.StatusCancelled {
		run.Fail("STATUS_INVALID")
		return nil, application.NewValidation(fmt.Sprintf("unsupported webhook status %q", cmd.Status))
	}

	p, err := uc.lookup(ctx, cmd.TransactionID)
	if err != nil {
		return nil, err
	}
	if p.OrderRef != cmd.OrderRef {
		run.Fail("ORDER_REF_MISMATCH")
		return nil, fmt.Errorf("%w: transaction %s belongs to %s, not %s",
			domorder.ErrPaymentMismatch, p.TransactionID, p.OrderRef, cmd.OrderRef)
	}
	if p.Status != claimed {
		run.Log.Warn("webhook_status_overridden",
			observability.F("claimed", cmd.Status),
			observability.F("authoritative", string(p.Status)),
		)
	}
	if p.Status != dompay.StatusPaid && p.Status != dompay.StatusCancelled {
		run.Fail("PAYMENT_NOT_SETTLED")
		return nil, application.NewValidation(fmt.Sprintf("transaction %s is %s", p.TransactionID, p.Status))
	}
	key := settlementKey(p)
	if prev, ok := uc.recent.Get(key); ok {
		prev.AlreadyProcessed = true
		run.Status("ALREADY_PROCESSED")
		return &prev, nil
	}

	detail := "transaction=" + p.TransactionID
	if cmd.CancellationID != "" {
		detail += " cancellation=" + cmd.CancellationID
	}

	var (
		o        *domorder.Order
		already  bool
		changed  bool
		mismatch error
	)
	err = uc.store.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		if o, err = tx.Orders().FindByReference(ctx, p.OrderRef); err != nil {
			return err
		}

		total := o.Total
		var effect domorder.Effect
		var applyErr error
		switch p.Status {
		case dompay.StatusPaid:
			effect, applyErr = o.ApplyPayment(p.Amount, detail, uc.now())
		default:
			effect, applyErr = uc.cancel(o, p, detail)
		}
		switch {
		case errors.Is(applyErr, domorder.ErrAlreadyProcessed):
			already = true
			return nil
		case errors.Is(applyErr, domorder.ErrPaymentMismatch):
			if len(o.PendingTransitions()) == 0 && recorded(o, detail) {
				// A redelivery of the notification that already cancelled the order.
				already = true
				return nil
			}
			mismatch = applyErr
		case applyErr != nil:
			return applyErr
		}

		if effect == domorder.EffectReleaseStock {
			if err := appinv.Release(ctx, tx.Items(), reservationsOf(o)); err != nil {
				return err
			}
		}
		changed = len(o.PendingTransitions()) > 0
		if !changed && o.Total == total {
			return nil
		}
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, application.WrapRepositoryError(err)
	}

	result := &WebhookResult{
		OrderID:          o.ID,
		OrderRef:         o.Reference,
		Status:           o.Status,
		TotalPrice:       o.Total,
		AlreadyProcessed: already,
	}
	run.Span().SetAttributes(attribute.String("order.status", string(o.Status)))
	run.Annotate(
		observability.F("order_id", o.ID),
		observability.F("order_status", string(o.Status)),
		observability.F("payment_status", string(p.Status)),
	)
	if already {
		uc.recent.Add(key, *result)
		run.Status("ALREADY_PROCESSED")
		return result, nil
	}

	if changed {
		run.Emit(ctx, uc.publisher, domorder.NewOrderStatusChangedEvent(o))
	}
	if mismatch != nil {
		if captured := p.Captured(); p.Status == dompay.StatusPaid && captured > 0 {
			run.Emit(ctx, uc.publisher, dompay.NewRejectedEvent(o.ID, o.Reference, p.TransactionID, captured, mismatch.Error()))
		}
		uc.recent.Add(key, *result)
		run.Fail("PAYMENT_INCONSISTENT")
		return result, mismatch
	}
	uc.recent.Add(key, *result)
	return result, nil
}

// cancel applies a gateway-side cancellation: nothing was captured for a
// PLACED order, otherwise the cancelled amount is refunded. A REFUNDED order
// follows further partial cancellations down to what is still captured.
func (uc *HandleWebhookUseCase) cancel(o *domorder.Order, p *dompay.Payment, detail string) (domorder.Effect, error) {
	switch o.Status {
	case domorder.StatusPlaced:
		return o.Cancel(domorder.CauseGatewayCancelled, detail, uc.now())
	case domorder.StatusRefunded:
		return domorder.EffectNone, o.AdjustRefund(p.Captured(), uc.now())
	}
	amount := p.CancelledAmount
	if amount <= 0 || amount > o.Total {
		amount = o.Total
	}
	return o.Refund(amount, domorder.CauseGatewayCancelled, detail, uc.now())
}

func (uc *HandleWebhookUseCase) lookup(ctx context.Context, transactionID string) (*dompay.Payment, error) {
	callCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	var p *dompay.Payment
	err := uc.inst.External(callCtx, peerGateway, "lookup", func(ctx context.Context) error {
		var err error
		p, err = uc.gateway.Lookup(ctx, transactionID)
		return err
	})
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, dompay.ErrNotFound), errors.Is(err, dompay.ErrGatewayFailure):
		return nil, fmt.Errorf("lookup %s: %w", transactionID, err)
	default:
		return nil, fmt.Errorf("lookup %s: %w: %w", transactionID, dompay.ErrGatewayFailure, err)
	}
}

// recorded reports whether a stored transition carries detail.
func recorded(o *domorder.Order, detail string) bool {
	stored := o.History[:len(o.History)-len(o.PendingTransitions())]
	for _, t := range stored {
		if t.Detail == detail {
			return true
		}
	}
	return false
}

func reservationsOf(o *domorder.Order) []appinv.Reservation {
	out := make([]appinv.Reservation, 0, len(o.Lines))
	for _, l := range o.Lines {
		out = append(out, appinv.Reservation{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	return out
}
