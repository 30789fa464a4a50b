// Package sqlite stores members, the item catalog, carts and orders in SQLite.
//
// The pool holds a single connection, so write transactions are serialised
// inside the process. Row locks are therefore implied by the open
// transaction and ReadForUpdate is a plain read.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/cafeshop/internal/application"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/cart"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/member"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/order"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

func init() {
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

type DB struct {
	db *sqlx.DB
}

// Open opens path and applies connection pragmas. Migrations are applied
// separately with Migrate.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	db, err := sqlx.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"}
	if !isMemory(path) {
		pragmas = append([]string{"PRAGMA journal_mode=WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	return &DB{db: db}, nil
}

// OpenMigrated opens path and brings its schema up to date.
func OpenMigrated(ctx context.Context, path string) (*DB, error) {
	d, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Migrate(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func isMemory(path string) bool {
	return path == MemoryPath || strings.Contains(path, "mode=memory")
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// InTx implements application.Store.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) (err error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("sqlite: commit: %w", cerr)
		}
	}()
	return fn(ctx, unit{q: tx})
}

// unit binds every repository to one transaction.
type unit struct {
	q sqlx.ExtContext
}

func (u unit) Members() member.Directory { return memberRepo{q: u.q} }
func (u unit) Items() inventory.Ledger    { return itemRepo{q: u.q} }
func (u unit) Carts() cart.Store          { return cartRepo{q: u.q} }
func (u unit) Orders() order.Repository   { return orderRepo{q: u.q} }

var _ application.Store = (*DB)(nil)
