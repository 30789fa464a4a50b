package member

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("member: not found")

type Member struct {
	ID      string
	Email   string
	Address string
}

// Directory resolves members owned by the account service.
type Directory interface {
	FindByID(ctx context.Context, id string) (*Member, error)
}
