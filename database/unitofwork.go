package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var savepointName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrTxDone is returned when a finished unit of work is used again.
var ErrTxDone = errors.New("unit of work already finished")

// UnitOfWork is one transaction with an explicit deadline. Its context is
// detached from the caller, so a client going away does not abort a write that
// already started; only the timeout does.
type UnitOfWork struct {
	ctx    context.Context
	cancel context.CancelFunc
	tx     *sql.Tx
	done   bool
}

// Begin starts a unit of work bounded by timeout (no bound when timeout <= 0).
func Begin(ctx context.Context, db *sql.DB, timeout time.Duration) (*UnitOfWork, error) {
	base := context.WithoutCancel(ctx)
	var (
		txCtx  context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		txCtx, cancel = context.WithTimeout(base, timeout)
	} else {
		txCtx, cancel = context.WithCancel(base)
	}

	tx, err := db.BeginTx(txCtx, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	return &UnitOfWork{ctx: txCtx, cancel: cancel, tx: tx}, nil
}

// Context is the detached, deadline-bound context of the transaction.
func (u *UnitOfWork) Context() context.Context { return u.ctx }

// Tx exposes the underlying transaction.
func (u *UnitOfWork) Tx() *sql.Tx { return u.tx }

// Exec runs a statement in the transaction.
func (u *UnitOfWork) Exec(query string, args ...any) (sql.Result, error) {
	if u.done {
		return nil, ErrTxDone
	}
	return u.tx.ExecContext(u.ctx, query, args...)
}

// Savepoint runs fn inside SAVEPOINT name. When fn fails the transaction is
// rolled back to the savepoint and stays usable; fn's error is returned.
func (u *UnitOfWork) Savepoint(ctx context.Context, name string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if u.done {
		return ErrTxDone
	}
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if ctx == nil {
		ctx = u.ctx
	}
	if _, err := u.tx.ExecContext(u.ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("error creating savepoint %s: %w", name, err)
	}

	if err := fn(ctx, u.tx); err != nil {
		if _, rbErr := u.tx.ExecContext(u.ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("error rolling back to savepoint %s: %w", name, rbErr))
		}
		// ROLLBACK TO keeps the savepoint open.
		if _, relErr := u.tx.ExecContext(u.ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return errors.Join(err, fmt.Errorf("error releasing savepoint %s: %w", name, relErr))
		}
		return err
	}

	if _, err := u.tx.ExecContext(u.ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("error releasing savepoint %s: %w", name, err)
	}
	return nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.done {
		return ErrTxDone
	}
	u.done = true
	defer u.cancel()
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op after Commit, so it can be
// deferred right after Begin.
func (u *UnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	defer u.cancel()
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("error rolling back transaction: %w", err)
	}
	return nil
}
