package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage. The
// ledger writer uses this to bind the version-conditioned project write and
// the event insert to a single transaction.
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

// Runner executes a function within a transaction boundary. Store-backed
// implementations open a *sql.Tx and thread it through the context; the
// in-memory runner just invokes the function, since memory stores are
// individually atomic.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NewNopRunner returns a Runner with no transactional semantics, for memory
// stores and tests.
func NewNopRunner() Runner { return nopRunner{} }

type nopRunner struct{}

func (nopRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// NewSQLRunner returns a Runner that wraps fn in a database transaction.
func NewSQLRunner(db *sql.DB) Runner { return sqlRunner{db: db} }

type sqlRunner struct {
	db *sql.DB
}

func (r sqlRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(WithTx(ctx, dbtx)); err != nil {
		_ = dbtx.Rollback()
		return err
	}
	return dbtx.Commit()
}
