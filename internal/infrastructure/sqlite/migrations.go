package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Migration is one forward step of the schema with its rollback.
type Migration struct {
	Version string
	Up      string
	Down    string
}

// Migrations are applied in slice order; versions must increase.
var Migrations = []Migration{
	{Version: "1.0.0", Up: schemaV1Up, Down: schemaV1Down},
	{Version: "1.1.0", Up: schemaV11Up, Down: schemaV11Down},
}

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);`

const schemaV1Up = `
CREATE TABLE members (
    id      TEXT PRIMARY KEY,
    email   TEXT NOT NULL,
    address TEXT NOT NULL DEFAULT ''
);

CREATE TABLE items (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    price      INTEGER NOT NULL CHECK (price >= 0),
    stock      INTEGER NOT NULL CHECK (stock >= 0),
    status     TEXT NOT NULL CHECK (status IN ('ON_SALE', 'SOLD_OUT')),
    updated_at INTEGER NOT NULL
);

CREATE TABLE cart_lines (
    member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    item_id   TEXT NOT NULL REFERENCES items(id),
    quantity  INTEGER NOT NULL CHECK (quantity > 0),
    PRIMARY KEY (member_id, item_id)
);

CREATE TABLE orders (
    id         TEXT PRIMARY KEY,
    member_id  TEXT NOT NULL REFERENCES members(id),
    reference  TEXT NOT NULL UNIQUE,
    status     TEXT NOT NULL,
    total      INTEGER NOT NULL CHECK (total >= 0),
    version    INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX idx_orders_member ON orders(member_id, created_at);
CREATE INDEX idx_orders_status ON orders(status);

CREATE TABLE order_lines (
    order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    line_no    INTEGER NOT NULL,
    item_id    TEXT NOT NULL,
    item_name  TEXT NOT NULL,
    quantity   INTEGER NOT NULL CHECK (quantity > 0),
    unit_price INTEGER NOT NULL CHECK (unit_price >= 0),
    PRIMARY KEY (order_id, line_no)
);

CREATE TRIGGER order_lines_immutable BEFORE UPDATE ON order_lines
BEGIN
    SELECT RAISE(ABORT, 'order lines are immutable');
END;
`

const schemaV1Down = `
DROP TRIGGER IF EXISTS order_lines_immutable;
DROP TABLE IF EXISTS order_lines;
DROP TABLE IF EXISTS orders;
DROP TABLE IF EXISTS cart_lines;
DROP TABLE IF EXISTS items;
DROP TABLE IF EXISTS members;
`

const schemaV11Up = `
CREATE TABLE order_transitions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    from_status TEXT NOT NULL DEFAULT '',
    to_status   TEXT NOT NULL,
    cause       TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    at          INTEGER NOT NULL
);

CREATE INDEX idx_order_transitions_order ON order_transitions(order_id, id);
`

const schemaV11Down = `
DROP TABLE IF EXISTS order_transitions;
`

// SchemaVersion returns the highest applied migration, or 0.0.0.
func (d *DB) SchemaVersion(ctx context.Context) (*semver.Version, error) {
	if _, err := d.db.ExecContext(ctx, schemaVersionTable); err != nil {
		return nil, fmt.Errorf("sqlite: create schema_version: %w", err)
	}
	var applied []string
	if err := d.db.SelectContext(ctx, &applied, "SELECT version FROM schema_version"); err != nil {
		return nil, fmt.Errorf("sqlite: read schema_version: %w", err)
	}
	current := semver.MustParse("0.0.0")
	for _, s := range applied {
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("sqlite: invalid schema version %q: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, nil
}

// Migrate applies every pending migration, each in its own transaction.
// It returns the versions it applied.
func (d *DB) Migrate(ctx context.Context) ([]string, error) {
	current, err := d.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, m := range Migrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return applied, fmt.Errorf("sqlite: invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}
		if err := d.exec(ctx, m.Up,
			"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", m.Version, time.Now().UnixNano()); err != nil {
			return applied, fmt.Errorf("sqlite: apply migration %s: %w", m.Version, err)
		}
		applied = append(applied, m.Version)
		current = v
	}
	return applied, nil
}

// Rollback reverts the most recent migration and returns its version.
func (d *DB) Rollback(ctx context.Context) (string, error) {
	current, err := d.SchemaVersion(ctx)
	if err != nil {
		return "", err
	}
	for i := len(Migrations) - 1; i >= 0; i-- {
		m := Migrations[i]
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return "", fmt.Errorf("sqlite: invalid migration version %s: %w", m.Version, err)
		}
		if !v.Equal(current) {
			continue
		}
		if err := d.exec(ctx, m.Down,
			"DELETE FROM schema_version WHERE version = ?", m.Version); err != nil {
			return "", fmt.Errorf("sqlite: roll back migration %s: %w", m.Version, err)
		}
		return m.Version, nil
	}
	return "", fmt.Errorf("sqlite: no migration matches schema version %s", current)
}

func (d *DB) exec(ctx context.Context, script, record string, args ...any) (err error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, record, args...); err != nil {
		return err
	}
	return tx.Commit()
}
