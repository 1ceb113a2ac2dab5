// Package dbx provides tiny DB abstractions shared by repositories:
// a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx,
// helpers to run functions inside a transaction, and a Transactor that
// retries transactions aborted by the database for serialization reasons.
package dbx

import (
	"context"
	"database/sql"
	"time"

	"github.com/sethvargo/go-retry"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE profiles SET ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
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
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// Transactor is what services depend on: a plain handle for single
// statements and a way to run a unit of work atomically.
type Transactor interface {
	DB() DBTX
	WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}

const (
	defaultRetryBase    = 20 * time.Millisecond
	defaultRetryMax     = 4
	defaultRetryCeiling = 500 * time.Millisecond
)

// SQLTransactor runs units of work on a *sql.DB. A unit aborted with a
// serialization failure or deadlock is replayed from scratch.
type SQLTransactor struct {
	db      *sql.DB
	opts    *sql.TxOptions
	backoff func() retry.Backoff
}

// NewSQLTransactor binds a transactor to db using READ COMMITTED and the
// default retry schedule.
func NewSQLTransactor(db *sql.DB) *SQLTransactor {
	return &SQLTransactor{
		db:      db,
		opts:    &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		backoff: DefaultBackoff,
	}
}

// DefaultBackoff is exponential from 20ms, capped at 500ms, at most 4 retries.
func DefaultBackoff() retry.Backoff {
	b := retry.NewExponential(defaultRetryBase)
	b = retry.WithCappedDuration(defaultRetryCeiling, b)
	return retry.WithMaxRetries(defaultRetryMax, b)
}

// DB returns the underlying pool.
func (t *SQLTransactor) DB() DBTX {
	return t.db
}

// WithTx runs fn in a transaction, retrying on transient conflicts.
func (t *SQLTransactor) WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return WithRetry(ctx, t.backoff(), func(ctx context.Context) error {
		return WithTx(ctx, t.db, t.opts, fn)
	})
}

// WithRetry calls fn until it succeeds, fails with a non-transient error,
// or the backoff gives up. Only errors recognised by IsRetryable are retried.
func WithRetry(ctx context.Context, b retry.Backoff, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
