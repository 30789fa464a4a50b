package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/cafeshop/internal/application"
	domain "github.com/Zhima-Mochi/cafeshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/cafeshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseAdvanceDelivery = "order.advance_delivery"
	useCaseSweepDelivery   = "order.sweep_delivery"

	DefaultCutoffHour = 14
)

// AdvanceDeliveryUseCase is the admin-driven forward move through delivery.
type AdvanceDeliveryUseCase struct {
	store      application.Store
	publisher  domoutbox.Publisher
	cutoffHour int
	loc        *time.Location
	opts       Options
	inst       application.Instruments
}

// NewAdvanceDeliveryUseCase evaluates the confirmation cutoff in loc (time.Local when nil).
func NewAdvanceDeliveryUseCase(
	store application.Store,
	publisher domoutbox.Publisher,
	cutoffHour int,
	loc *time.Location,
	tel observability.Observability,
	opts Options,
) *AdvanceDeliveryUseCase {
	if cutoffHour <= 0 || cutoffHour > 24 {
		cutoffHour = DefaultCutoffHour
	}
	if loc == nil {
		loc = time.Local
	}
	return &AdvanceDeliveryUseCase{
		store:      store,
		publisher:  publisher,
		cutoffHour: cutoffHour,
		loc:        loc,
		opts:       opts.withDefaults(),
		inst:       application.NewInstruments(tel, orderService),
	}
}

// AdvanceDeliveryInput moves OrderRef to Target, or to the default next step when Target is empty.
type AdvanceDeliveryInput struct {
	OrderRef string
	Target   domain.Status
	Actor    string
}

type AdvanceDeliveryResult struct {
	OrderID  string
	OrderRef string
	From     domain.Status
	Status   domain.Status
}

func (uc *AdvanceDeliveryUseCase) Execute(ctx context.Context, cmd AdvanceDeliveryInput) (_ *AdvanceDeliveryResult, err error) {
	ctx, run := uc.inst.Begin(ctx, useCaseAdvanceDelivery, "AdvanceDelivery",
		attribute.String("order.ref", cmd.OrderRef),
		attribute.String("order.target_status", string(cmd.Target)),
	)
	defer func() { run.End(ctx, err) }()

	if cmd.OrderRef == "" {
		run.Fail("ORDER_REF_REQUIRED")
		return nil, application.NewValidation("order reference is required")
	}
	if cmd.Target != "" {
		if _, ok := domain.ParseStatus(string(cmd.Target)); !ok {
			run.Fail("TARGET_INVALID")
			return nil, application.NewValidation(fmt.Sprintf("unknown status %q", cmd.Target))
		}
	}
	actor := cmd.Actor
	if actor == "" {
		actor = "admin"
	}

	var (
		o    *domain.Order
		from domain.Status
	)
	err = uc.store.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		if o, err = tx.Orders().FindByReference(ctx, cmd.OrderRef); err != nil {
			return err
		}
		from = o.Status
		now := uc.opts.Now()
		target := cmd.Target
		if target == "" {
			if target, err = domain.NextDeliveryStatus(o.Status, now.In(uc.loc), uc.cutoffHour); err != nil {
				return err
			}
		}
		if err := o.Advance(target, domain.CauseAdmin, actor, now); err != nil {
			return err
		}
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, application.WrapRepositoryError(err)
	}

	run.Annotate(
		observability.F("order_id", o.ID),
		observability.F("from", string(from)),
		observability.F("to", string(o.Status)),
	)
	run.Emit(ctx, uc.publisher, domain.NewOrderStatusChangedEvent(o))
	return &AdvanceDeliveryResult{OrderID: o.ID, OrderRef: o.Reference, From: from, Status: o.Status}, nil
}

// SweepDeliveryUseCase promotes every DELIVERY_PREPARING order to AWAITING_DELIVERY.
type SweepDeliveryUseCase struct {
	store     application.Store
	publisher domoutbox.Publisher
	opts      Options
	inst      application.Instruments
}

func NewSweepDeliveryUseCase(store application.Store, publisher domoutbox.Publisher, tel observability.Observability, opts Options) *SweepDeliveryUseCase {
	return &SweepDeliveryUseCase{
		store:     store,
		publisher: publisher,
		opts:      opts.withDefaults(),
		inst:      application.NewInstruments(tel, orderService),
	}
}

type SweepInput struct {
	// RunID tags the history entries written by this sweep.
	RunID string
}

type SweepResult struct {
	Promoted  int
	Conflicts int
}

// Execute runs one transaction per order so that a concurrent transition on one
// order only skips that order.
func (uc *SweepDeliveryUseCase) Execute(ctx context.Context, cmd SweepInput) (_ *SweepResult, err error) {
	ctx, run := uc.inst.Begin(ctx, useCaseSweepDelivery, "SweepDelivery",
		attribute.String("sweep.run_id", cmd.RunID),
	)
	defer func() { run.End(ctx, err) }()

	var pending []*domain.Order
	err = uc.store.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		pending, err = tx.Orders().ListByStatus(ctx, domain.StatusDeliveryPreparing)
		return err
	})
	if err != nil {
		return nil, application.WrapRepositoryError(err)
	}

	result := &SweepResult{}
	for _, candidate := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		var promoted *domain.Order
		txErr := uc.store.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
			o, err := tx.Orders().FindByID(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if o.Status != domain.StatusDeliveryPreparing {
				return domain.ErrConflict
			}
			if err := o.Advance(domain.StatusAwaitingDelivery, domain.CauseSweep, cmd.RunID, uc.opts.Now()); err != nil {
				return err
			}
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
			promoted = o
			return nil
		})
		switch {
		case txErr == nil:
			result.Promoted++
			run.Emit(ctx, uc.publisher, domain.NewOrderStatusChangedEvent(promoted))
		case errors.Is(txErr, domain.ErrConflict):
			result.Conflicts++
		default:
			return result, application.WrapRepositoryError(txErr)
		}
	}

	run.Annotate(
		observability.F("promoted", result.Promoted),
		observability.F("conflicts", result.Conflicts),
	)
	return result, nil
}
