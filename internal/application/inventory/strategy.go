package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	dominv "github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"
	"github.com/Zhima-Mochi/cafeshop/internal/observability/logctx"
)

const (
	StrategyAtomic      = "atomic"
	StrategyPessimistic = "pessimistic"

	DefaultLockWait = 5 * time.Second
	DefaultLockHold = 10 * time.Second
)

// Reservation is a request to take Quantity units of ItemID.
type Reservation struct {
	ItemID   string
	Quantity int
}

// Strategy reserves stock for a whole order. Guard wraps the transaction in
// which Reserve runs.
type Strategy interface {
	Name() string
	Guard(ctx context.Context, itemIDs []string, fn func(ctx context.Context) error) error
	Reserve(ctx context.Context, ledger dominv.Ledger, reservations []Reservation) error
}

// NewStrategy selects a strategy by name. locks is only used by the pessimistic one.
func NewStrategy(name string, locks LockCoordinator, wait, hold time.Duration, tel observability.Observability) (Strategy, error) {
	switch name {
	case StrategyAtomic, "":
		return NewAtomicStrategy(tel), nil
	case StrategyPessimistic:
		if locks == nil {
			return nil, errors.New("inventory: pessimistic strategy requires a lock coordinator")
		}
		return NewPessimisticStrategy(locks, wait, hold, tel), nil
	default:
		return nil, fmt.Errorf("inventory: unknown reservation strategy %q", name)
	}
}

// Merge folds duplicate item ids together and sorts by item id.
func Merge(rs []Reservation) []Reservation {
	byID := make(map[string]int, len(rs))
	for _, r := range rs {
		byID[r.ItemID] += r.Quantity
	}
	out := make([]Reservation, 0, len(byID))
	for id, q := range byID {
		out = append(out, Reservation{ItemID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// ItemIDs returns the distinct item ids in ascending order.
func ItemIDs(rs []Reservation) []string {
	merged := Merge(rs)
	ids := make([]string, len(merged))
	for i, r := range merged {
		ids[i] = r.ItemID
	}
	return ids
}

// Release returns every reserved quantity to the ledger.
func Release(ctx context.Context, ledger dominv.Ledger, rs []Reservation) error {
	for _, r := range Merge(rs) {
		if err := ledger.Release(ctx, r.ItemID, r.Quantity); err != nil {
			return fmt.Errorf("release %s: %w", r.ItemID, err)
		}
	}
	return nil
}

func validate(rs []Reservation) error {
	if len(rs) == 0 {
		return fmt.Errorf("%w: nothing to reserve", dominv.ErrInvalidQuantity)
	}
	for _, r := range rs {
		if r.Quantity <= 0 {
			return fmt.Errorf("%w: item %s", dominv.ErrInvalidQuantity, r.ItemID)
		}
	}
	return nil
}

// AtomicStrategy relies on the ledger's conditional decrement alone.
type AtomicStrategy struct {
	reservations observability.Counter
}

func NewAtomicStrategy(tel observability.Observability) *AtomicStrategy {
	if tel == nil {
		tel = observability.Nop()
	}
	return &AtomicStrategy{reservations: tel.Metrics().Counter(observability.MStockReservations)}
}

func (s *AtomicStrategy) Name() string { return StrategyAtomic }

func (s *AtomicStrategy) Guard(ctx context.Context, _ []string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Reserve attempts every line so the error names all short items. The caller's
// transaction rollback undoes the lines that did apply.
func (s *AtomicStrategy) Reserve(ctx context.Context, ledger dominv.Ledger, rs []Reservation) error {
	if err := validate(rs); err != nil {
		return err
	}
	var short []string
	for _, r := range Merge(rs) {
		ok, err := ledger.TryReserve(ctx, r.ItemID, r.Quantity)
		if err != nil {
			s.count("error")
			return fmt.Errorf("reserve %s: %w", r.ItemID, err)
		}
		if !ok {
			short = append(short, r.ItemID)
		}
	}
	if len(short) > 0 {
		s.count("insufficient")
		return dominv.NewInsufficientStockError(short...)
	}
	s.count("reserved")
	return nil
}

func (s *AtomicStrategy) count(outcome string) {
	s.reservations.Add(1, observability.L("strategy", StrategyAtomic), observability.L("outcome", outcome))
}

// PessimisticStrategy serialises access per item through a LockCoordinator and
// checks stock on a locked read before decrementing.
type PessimisticStrategy struct {
	locks        LockCoordinator
	wait, hold   time.Duration
	log          observability.Logger
	reservations observability.Counter
	lockWait     observability.Histogram
}

func NewPessimisticStrategy(locks LockCoordinator, wait, hold time.Duration, tel observability.Observability) *PessimisticStrategy {
	if tel == nil {
		tel = observability.Nop()
	}
	if wait <= 0 {
		wait = DefaultLockWait
	}
	if hold <= 0 {
		hold = DefaultLockHold
	}
	return &PessimisticStrategy{
		locks:        locks,
		wait:         wait,
		hold:         hold,
		log:          tel.Logger().With(observability.F("component", "reservation")),
		reservations: tel.Metrics().Counter(observability.MStockReservations),
		lockWait:     tel.Metrics().Histogram(observability.MLockWait),
	}
}

func (s *PessimisticStrategy) Name() string { return StrategyPessimistic }

// Guard takes one lock per distinct item in ascending id order, runs fn and
// releases every lock on all exit paths. A failed acquisition releases what was
// already held and fn never runs.
func (s *PessimisticStrategy) Guard(ctx context.Context, itemIDs []string, fn func(ctx context.Context) error) error {
	ids := append([]string(nil), itemIDs...)
	sort.Strings(ids)

	held := make([]Lock, 0, len(ids))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(context.WithoutCancel(ctx)); err != nil {
				logctx.FromOr(ctx, s.log).Warn("lock_release_failed",
					observability.F("key", held[i].Key()),
					observability.Err(err),
				)
			}
		}
	}()

	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		start := time.Now()
		l, err := s.locks.Acquire(ctx, LockKey(id), s.wait, s.hold)
		outcome := "acquired"
		if err != nil {
			outcome = "failed"
		}
		s.lockWait.Observe(time.Since(start).Seconds(), observability.L("outcome", outcome))
		if err != nil {
			s.count("lock_failed")
			return fmt.Errorf("lock %s: %w", LockKey(id), err)
		}
		held = append(held, l)
	}
	return fn(ctx)
}

func (s *PessimisticStrategy) Reserve(ctx context.Context, ledger dominv.Ledger, rs []Reservation) error {
	if err := validate(rs); err != nil {
		return err
	}
	merged := Merge(rs)

	var short []string
	for _, r := range merged {
		item, err := ledger.ReadForUpdate(ctx, r.ItemID)
		if err != nil {
			s.count("error")
			return fmt.Errorf("read %s: %w", r.ItemID, err)
		}
		if !item.Available(r.Quantity) {
			short = append(short, r.ItemID)
		}
	}
	if len(short) > 0 {
		s.count("insufficient")
		return dominv.NewInsufficientStockError(short...)
	}

	for _, r := range merged {
		ok, err := ledger.TryReserve(ctx, r.ItemID, r.Quantity)
		if err != nil {
			s.count("error")
			return fmt.Errorf("reserve %s: %w", r.ItemID, err)
		}
		if !ok {
			short = append(short, r.ItemID)
		}
	}
	if len(short) > 0 {
		s.count("insufficient")
		return dominv.NewInsufficientStockError(short...)
	}
	s.count("reserved")
	return nil
}

func (s *PessimisticStrategy) count(outcome string) {
	s.reservations.Add(1, observability.L("strategy", StrategyPessimistic), observability.L("outcome", outcome))
}
