package payment

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/cafeshop/internal/application"
	domoutbox "github.com/Zhima-Mochi/cafeshop/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/cafeshop/internal/domain/payment"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseRefund = "payment.refund_rejected"

// RefundWorker returns captured amounts that an order rejected, e.g. a
// payment that did not match the order total.
type RefundWorker struct {
	subscriber domoutbox.Subscriber
	gateway    Gateway
	timeout    time.Duration
	inst       application.Instruments
}

func NewRefundWorker(subscriber domoutbox.Subscriber, gateway Gateway, tel observability.Observability, gatewayTimeout time.Duration) *RefundWorker {
	if gatewayTimeout <= 0 {
		gatewayTimeout = defaultGatewayTimeout
	}
	return &RefundWorker{
		subscriber: subscriber,
		gateway:    gateway,
		timeout:    gatewayTimeout,
		inst:       application.NewInstruments(tel, paymentService),
	}
}

func (w *RefundWorker) Start() {
	if w.subscriber == nil || w.gateway == nil {
		return
	}
	w.subscriber.Subscribe(dompay.RejectedEvent{}.EventName(), w.handleRejected)
}

func (w *RefundWorker) handleRejected(ctx context.Context, e domoutbox.Event) (err error) {
	evt, ok := e.(dompay.RejectedEvent)
	if !ok {
		return nil
	}

	ctx, run := w.inst.Begin(ctx, useCaseRefund, "RefundRejected",
		attribute.String("order.ref", evt.OrderRef),
		attribute.String("payment.transaction_id", evt.TransactionID),
		attribute.Int64("payment.amount", evt.Amount),
	)
	defer func() { run.End(ctx, err) }()

	run.Annotate(
		observability.F("order_id", evt.OrderID),
		observability.F("amount", evt.Amount),
	)

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.inst.External(callCtx, peerGateway, "cancel", func(ctx context.Context) error {
		return w.gateway.Cancel(ctx, evt.OrderRef, evt.Amount, evt.Reason)
	})
}
