// Package tx provides the unit-of-work boundary shared by every write
// operation. A mutation and its audit record are committed inside the same
// transaction or not at all.
package tx

import (
	"context"
	"database/sql"
	"sync"

	dErrors "orgcore/pkg/domain-errors"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner executes a function inside one all-or-nothing unit of work. If fn
// returns an error nothing it wrote is visible afterwards.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQL is the database-backed Runner. Stores participating in the unit pick
// the transaction up from context via From.
type SQL struct {
	db *sql.DB
}

func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

func (r *SQL) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "begin transaction")
	}
	if err := fn(WithTx(ctx, dbTx)); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "commit transaction")
	}
	return nil
}

// InMemory serializes units of work under a single mutex. It backs unit tests
// where in-memory stores apply writes immediately; services keep the audit
// append as the last step of the unit so a failed entity write never leaves
// an audit record behind.
type InMemory struct {
	mu sync.Mutex
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (r *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx)
}
