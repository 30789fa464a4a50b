package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/cafeshop/internal/application"
	appinv "github.com/Zhima-Mochi/cafeshop/internal/application/inventory"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/cafeshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/cafeshop/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/cafeshop/internal/domain/payment"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService      = "order-service"
	useCasePlaceOrder = "order.place"
	peerGateway       = "payment_gateway"

	DefaultGatewayTimeout = 3 * time.Second
)

var (
	ErrConflict   = domain.ErrConflict
	ErrNotFound   = domain.ErrNotFound
	ErrRepository = application.ErrRepository
)

// Options tunes the order use cases; zero values fall back to defaults.
type Options struct {
	GatewayTimeout time.Duration
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.GatewayTimeout <= 0 {
		o.GatewayTimeout = DefaultGatewayTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// PlaceOrderUseCase turns a single-item request or a member's cart into a
// PLACED order with its stock reserved and its charge registered at the gateway.
type PlaceOrderUseCase struct {
	store     application.Store
	strategy  appinv.Strategy
	gateway   PaymentGateway
	ids       IDGenerator
	refs      ReferenceGenerator
	publisher domoutbox.Publisher
	opts      Options
	inst      application.Instruments
}

func NewPlaceOrderUseCase(
	store application.Store,
	strategy appinv.Strategy,
	gateway PaymentGateway,
	ids IDGenerator,
	refs ReferenceGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts Options,
) *PlaceOrderUseCase {
	return &PlaceOrderUseCase{
		store:     store,
		strategy:  strategy,
		gateway:   gateway,
		ids:       ids,
		refs:      refs,
		publisher: publisher,
		opts:      opts.withDefaults(),
		inst:      application.NewInstruments(tel, orderService),
	}
}

// PlaceOrderInput orders ItemID x Quantity, or the whole cart when FromCart is set.
type PlaceOrderInput struct {
	MemberID string
	ItemID   string
	Quantity int
	FromCart bool
}

type PlaceOrderResult struct {
	OrderID    string
	OrderRef   string
	Status     domain.Status
	TotalPrice int64
}

// Execute performs the placement flow.
func (uc *PlaceOrderUseCase) Execute(ctx context.Context, cmd PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	ctx, run := uc.inst.Begin(ctx, useCasePlaceOrder, "PlaceOrder",
		attribute.String("order.member_id", cmd.MemberID),
		attribute.Bool("order.from_cart", cmd.FromCart),
		attribute.String("reservation.strategy", uc.strategy.Name()),
	)
	defer func() { run.End(ctx, err) }()

	if cmd.MemberID == "" {
		run.Fail("MEMBER_ID_REQUIRED")
		return nil, application.NewValidation("member id is required")
	}
	if !cmd.FromCart {
		if cmd.ItemID == "" {
			run.Fail("ITEM_ID_REQUIRED")
			return nil, application.NewValidation("item id is required")
		}
		if cmd.Quantity <= 0 {
			run.Fail("QUANTITY_INVALID")
			return nil, fmt.Errorf("%w: %w", application.ErrValidation, dominv.ErrInvalidQuantity)
		}
	}

	requested, err := uc.resolve(ctx, cmd)
	if err != nil {
		return nil, application.WrapRepositoryError(err)
	}

	var (
		placed  *domain.Order
		soldOut []string
	)
	err = uc.strategy.Guard(ctx, appinv.ItemIDs(requested), func(ctx context.Context) error {
		return uc.store.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
			if cmd.FromCart {
				current, err := tx.Carts().Lines(ctx, cmd.MemberID)
				if err != nil {
					return err
				}
				if !cart.SameItems(current, toCartLines(requested)) {
					return fmt.Errorf("%w: cart changed during checkout", domain.ErrConflict)
				}
			}

			lines, err := snapshot(ctx, tx.Items(), requested)
			if err != nil {
				return err
			}
			if err := uc.strategy.Reserve(ctx, tx.Items(), requested); err != nil {
				return err
			}

			now := uc.opts.Now()
			o, err := domain.New(uc.ids.NewID(), cmd.MemberID, uc.refs.NewReference(now), lines, now)
			if err != nil {
				return fmt.Errorf("order: construct: %w", err)
			}
			if err := tx.Orders().Insert(ctx, o); err != nil {
				return err
			}
			if cmd.FromCart {
				if err := tx.Carts().Clear(ctx, cmd.MemberID); err != nil {
					return err
				}
			}
			if soldOut, err = depleted(ctx, tx.Items(), requested); err != nil {
				return err
			}

			// Last step: a gateway failure rolls back reservations, order and cart together.
			if err := uc.prepare(ctx, o); err != nil {
				return err
			}
			placed = o
			return nil
		})
	})
	if err != nil {
		return nil, application.WrapRepositoryError(err)
	}

	run.Span().SetAttributes(
		attribute.String("order.id", placed.ID),
		attribute.Int64("order.total", placed.Total),
	)
	run.Event("order.placed", attribute.String("order.id", placed.ID))
	run.Annotate(
		observability.F("order_id", placed.ID),
		observability.F("order_ref", placed.Reference),
		observability.F("total", placed.Total),
	)

	run.Emit(ctx, uc.publisher, domain.NewOrderPlacedEvent(placed))
	for _, id := range soldOut {
		run.Emit(ctx, uc.publisher, dominv.NewItemSoldOutEvent(id, placed.ID))
	}

	return &PlaceOrderResult{
		OrderID:    placed.ID,
		OrderRef:   placed.Reference,
		Status:     placed.Status,
		TotalPrice: placed.Total,
	}, nil
}

func (uc *PlaceOrderUseCase) resolve(ctx context.Context, cmd PlaceOrderInput) ([]appinv.Reservation, error) {
	var requested []appinv.Reservation
	err := uc.store.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		if _, err := tx.Members().FindByID(ctx, cmd.MemberID); err != nil {
			return err
		}
		if !cmd.FromCart {
			requested = []appinv.Reservation{{ItemID: cmd.ItemID, Quantity: cmd.Quantity}}
			return nil
		}
		lines, err := tx.Carts().Lines(ctx, cmd.MemberID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("%w: %w", application.ErrValidation, cart.ErrEmpty)
		}
		for _, l := range lines {
			if l.Quantity <= 0 {
				return fmt.Errorf("%w: %w: item %s", application.ErrValidation, dominv.ErrInvalidQuantity, l.ItemID)
			}
			requested = append(requested, appinv.Reservation{ItemID: l.ItemID, Quantity: l.Quantity})
		}
		return nil
	})
	return requested, err
}

func (uc *PlaceOrderUseCase) prepare(ctx context.Context, o *domain.Order) error {
	callCtx, cancel := context.WithTimeout(ctx, uc.opts.GatewayTimeout)
	defer cancel()

	err := uc.inst.External(callCtx, peerGateway, "prepare", func(ctx context.Context) error {
		return uc.gateway.Prepare(ctx, o.Reference, o.Total)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, dompay.ErrGatewayFailure) {
		return fmt.Errorf("prepare %s: %w", o.Reference, err)
	}
	return fmt.Errorf("prepare %s: %w: %w", o.Reference, dompay.ErrGatewayFailure, err)
}

// snapshot prices every line from the catalog and fails fast on an obvious
// shortage. The strategy's Reserve remains the authoritative check.
func snapshot(ctx context.Context, items dominv.Ledger, rs []appinv.Reservation) ([]domain.Line, error) {
	merged := appinv.Merge(rs)
	lines := make([]domain.Line, 0, len(merged))
	var short []string
	for _, r := range merged {
		item, err := items.Get(ctx, r.ItemID)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", r.ItemID, err)
		}
		if !item.Available(r.Quantity) {
			short = append(short, r.ItemID)
		}
		lines = append(lines, domain.Line{
			ItemID:    item.ID,
			ItemName:  item.Name,
			Quantity:  r.Quantity,
			UnitPrice: item.Price,
		})
	}
	if len(short) > 0 {
		return nil, dominv.NewInsufficientStockError(short...)
	}
	return lines, nil
}

func depleted(ctx context.Context, items dominv.Ledger, rs []appinv.Reservation) ([]string, error) {
	var out []string
	for _, id := range appinv.ItemIDs(rs) {
		item, err := items.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if item.Status == dominv.StatusSoldOut {
			out = append(out, id)
		}
	}
	return out, nil
}

func toCartLines(rs []appinv.Reservation) []cart.Line {
	out := make([]cart.Line, len(rs))
	for i, r := range rs {
		out[i] = cart.Line{ItemID: r.ItemID, Quantity: r.Quantity}
	}
	return out
}
