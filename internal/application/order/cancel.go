package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/cafeshop/internal/application"
	appinv "github.com/Zhima-Mochi/cafeshop/internal/application/inventory"
	domain "github.com/Zhima-Mochi/cafeshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/cafeshop/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/cafeshop/internal/domain/payment"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseCancelOrder = "order.cancel"

// CancelOrderUseCase lets a member (or an admin) terminate an order that has
// not entered shipment preparation.
type CancelOrderUseCase struct {
	store     application.Store
	gateway   PaymentGateway
	publisher domoutbox.Publisher
	opts      Options
	inst      application.Instruments
}

func NewCancelOrderUseCase(
	store application.Store,
	gateway PaymentGateway,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts Options,
) *CancelOrderUseCase {
	return &CancelOrderUseCase{
		store:     store,
		gateway:   gateway,
		publisher: publisher,
		opts:      opts.withDefaults(),
		inst:      application.NewInstruments(tel, orderService),
	}
}

type CancelOrderInput struct {
	OrderRef string
	// MemberID must own the order unless Admin is set.
	MemberID string
	Admin    bool
	// Amount refunds part of a PAID order; zero refunds the whole total.
	Amount int64
	Reason string
}

type CancelOrderResult struct {
	OrderID    string
	OrderRef   string
	Status     domain.Status
	TotalPrice int64
}

func (uc *CancelOrderUseCase) Execute(ctx context.Context, cmd CancelOrderInput) (_ *CancelOrderResult, err error) {
	ctx, run := uc.inst.Begin(ctx, useCaseCancelOrder, "CancelOrder",
		attribute.String("order.ref", cmd.OrderRef),
		attribute.Bool("order.cancel_by_admin", cmd.Admin),
	)
	defer func() { run.End(ctx, err) }()

	if cmd.OrderRef == "" {
		run.Fail("ORDER_REF_REQUIRED")
		return nil, application.NewValidation("order reference is required")
	}
	if !cmd.Admin && cmd.MemberID == "" {
		run.Fail("MEMBER_ID_REQUIRED")
		return nil, application.NewValidation("member id is required")
	}
	if cmd.Amount < 0 {
		run.Fail("AMOUNT_INVALID")
		return nil, application.NewValidation("amount must be zero or greater")
	}

	cause, actor := domain.CauseMemberCancelled, cmd.MemberID
	if cmd.Admin {
		cause, actor = domain.CauseAdmin, "admin"
	}
	detail := actor
	if cmd.Reason != "" {
		detail = actor + ": " + cmd.Reason
	}

	var o *domain.Order
	err = uc.store.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		o, err = tx.Orders().FindByReference(ctx, cmd.OrderRef)
		if err != nil {
			return err
		}
		if !cmd.Admin && o.MemberID != cmd.MemberID {
			return domain.ErrNotFound
		}

		var effect domain.Effect
		switch o.Status {
		case domain.StatusPaid:
			amount := cmd.Amount
			if amount == 0 {
				amount = o.Total
			}
			if effect, err = o.Refund(amount, cause, detail, uc.opts.Now()); err != nil {
				return err
			}
			// Money was captured: the gateway must accept the refund before we commit.
			if err := uc.refund(ctx, o.Reference, amount, detail); err != nil {
				return err
			}
		default:
			if effect, err = o.Cancel(cause, detail, uc.opts.Now()); err != nil {
				return err
			}
		}
		if effect == domain.EffectReleaseStock {
			if err := appinv.Release(ctx, tx.Items(), reservationsOf(o)); err != nil {
				return err
			}
		}
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, application.WrapRepositoryError(err)
	}

	run.Annotate(observability.F("order_id", o.ID), observability.F("order_status", string(o.Status)))
	run.Emit(ctx, uc.publisher, domain.NewOrderStatusChangedEvent(o))
	return &CancelOrderResult{OrderID: o.ID, OrderRef: o.Reference, Status: o.Status, TotalPrice: o.Total}, nil
}

func (uc *CancelOrderUseCase) refund(ctx context.Context, ref string, amount int64, reason string) error {
	callCtx, cancel := context.WithTimeout(ctx, uc.opts.GatewayTimeout)
	defer cancel()
	err := uc.inst.External(callCtx, peerGateway, "cancel", func(ctx context.Context) error {
		return uc.gateway.Cancel(ctx, ref, amount, reason)
	})
	if err == nil || errors.Is(err, dompay.ErrGatewayFailure) {
		return err
	}
	return fmt.Errorf("cancel %s: %w: %w", ref, dompay.ErrGatewayFailure, err)
}

func reservationsOf(o *domain.Order) []appinv.Reservation {
	out := make([]appinv.Reservation, 0, len(o.Lines))
	for _, l := range o.Lines {
		out = append(out, appinv.Reservation{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	return out
}
