// Package dbtx carries the live connection and optional ambient
// transaction that generated commands execute against.
package dbtx

import (
	"context"
	"database/sql"
)

// Runner is the execution surface shared by *sql.DB and *sql.Tx.
type Runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn pairs a live connection with an optional ambient transaction.
// The two constructors populate the optional field differently; there
// is no other difference between the shapes.
type Conn struct {
	db *sql.DB
	tx *sql.Tx
}

// New wraps a bare connection with no ambient transaction.
func New(db *sql.DB) *Conn {
	return &Conn{db: db}
}

// NewTx wraps a connection with an ambient transaction that every
// command invoked through the wrapper participates in.
func NewTx(db *sql.DB, tx *sql.Tx) *Conn {
	return &Conn{db: db, tx: tx}
}

// Runner returns the ambient transaction when present, otherwise the
// bare connection.
func (c *Conn) Runner() Runner {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

// DB returns the underlying connection.
func (c *Conn) DB() *sql.DB { return c.db }

// Tx returns the ambient transaction, nil when absent.
func (c *Conn) Tx() *sql.Tx { return c.tx }
