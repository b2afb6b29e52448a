package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/dataset-importer/internal/store"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Runner runs store transactions on a pgx pool.
type Runner struct {
	pool txBeginner
}

// NewRunner wraps a pool (a *pgxpool.Pool or a pgxmock pool in tests).
func NewRunner(pool txBeginner) (*Runner, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Runner{pool: pool}, nil
}

// RunInTransaction begins a transaction, runs fn and commits when fn succeeds.
// Any failure rolls the transaction back. Connection-level failures are wrapped
// with store.ErrConnection.
func (r *Runner) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", markConnection(err, true))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()
	if err := fn(ctx, pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(markConnection(err, false), fmt.Errorf("rollback: %w", markConnection(rbErr, false)))
		}
		return markConnection(err, false)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", markConnection(err, false))
	}
	return nil
}

// markConnection wraps err with store.ErrConnection when it stems from the
// connection. always forces the wrap, used for failures to begin.
func markConnection(err error, always bool) error {
	if err == nil || errors.Is(err, store.ErrConnection) {
		return err
	}
	if always || isConnError(err) {
		return fmt.Errorf("%w: %w", store.ErrConnection, err)
	}
	return err
}

func isConnError(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. 57P01-57P03: server shutting down.
		code := pgErr.Code
		return len(code) == 5 && (code[:2] == "08" || code == "57P01" || code == "57P02" || code == "57P03")
	}
	return false
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t pgTx) Query(ctx context.Context, sql string, args ...any) (store.Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t pgTx) QueryRow(ctx context.Context, sql string, args ...any) store.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}
