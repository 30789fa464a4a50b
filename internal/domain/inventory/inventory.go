package inventory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: item not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInvalidPrice      = errors.New("inventory: price must be zero or greater")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

type SaleStatus string

const (
	StatusOnSale  SaleStatus = "ON_SALE"
	StatusSoldOut SaleStatus = "SOLD_OUT"
)

// Item is the catalog entry whose stock the ledger guards.
type Item struct {
	ID        string
	Name      string
	Price     int64
	Stock     int
	Status    SaleStatus
	UpdatedAt time.Time
}

func NewItem(id, name string, price int64, stock int) (*Item, error) {
	if id == "" {
		return nil, errors.New("inventory: item id is required")
	}
	if price < 0 {
		return nil, ErrInvalidPrice
	}
	if stock < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Item{
		ID:        id,
		Name:      name,
		Price:     price,
		Stock:     stock,
		Status:    StatusFor(stock),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// StatusFor is the only place sale status is derived.
func StatusFor(stock int) SaleStatus {
	if stock <= 0 {
		return StatusSoldOut
	}
	return StatusOnSale
}

// Available reports whether qty could be reserved from this snapshot.
func (i *Item) Available(qty int) bool {
	return i.Status != StatusSoldOut && i.Stock >= qty
}

// InsufficientStockError names every item that could not cover its requested quantity.
type InsufficientStockError struct {
	ItemIDs []string
}

func NewInsufficientStockError(ids ...string) *InsufficientStockError {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return &InsufficientStockError{ItemIDs: out}
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInsufficientStock, strings.Join(e.ItemIDs, ", "))
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ErrLockNotAcquired is returned when an item lock could not be taken within its wait bound.
var ErrLockNotAcquired = errors.New("inventory: item lock not acquired")
