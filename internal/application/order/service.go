package order

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/cafeshop/internal/application"
	domain "github.com/Zhima-Mochi/cafeshop/internal/domain/order"
)

// Service is the read side over orders.
type Service struct {
	store application.Store
}

func NewService(store application.Store) *Service {
	return &Service{store: store}
}

// Grouped holds one bucket per status, every bucket present even when empty.
type Grouped map[domain.Status][]*domain.Order

func group(orders []*domain.Order) Grouped {
	out := make(Grouped, len(domain.Statuses))
	for _, s := range domain.Statuses {
		out[s] = []*domain.Order{}
	}
	for _, o := range orders {
		out[o.Status] = append(out[o.Status], o)
	}
	return out
}

// ListByMember groups the member's orders by status, oldest first in each bucket.
func (s *Service) ListByMember(ctx context.Context, memberID string) (Grouped, error) {
	if memberID == "" {
		return nil, application.NewValidation("member id is required")
	}
	var orders []*domain.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		if _, err := tx.Members().FindByID(ctx, memberID); err != nil {
			return err
		}
		var err error
		orders, err = tx.Orders().ListByMember(ctx, memberID)
		return err
	})
	if err != nil {
		return nil, application.WrapRepositoryError(err)
	}
	return group(orders), nil
}

// ListAll groups every order by status for the admin view.
func (s *Service) ListAll(ctx context.Context) (Grouped, error) {
	var orders []*domain.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		orders, err = tx.Orders().ListAll(ctx)
		return err
	})
	if err != nil {
		return nil, application.WrapRepositoryError(err)
	}
	return group(orders), nil
}

// GetByReference loads one order for the admin view.
func (s *Service) GetByReference(ctx context.Context, ref string) (*domain.Order, error) {
	if ref == "" {
		return nil, application.NewValidation("order reference is required")
	}
	var o *domain.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		o, err = tx.Orders().FindByReference(ctx, ref)
		return err
	})
	if err != nil {
		return nil, application.WrapRepositoryError(err)
	}
	return o, nil
}

// GetForMember loads one of memberID's orders. Another member's order reads as not found.
func (s *Service) GetForMember(ctx context.Context, memberID, ref string) (*domain.Order, error) {
	if memberID == "" {
		return nil, application.NewValidation("member id is required")
	}
	o, err := s.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if o.MemberID != memberID {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, ref)
	}
	return o, nil
}
