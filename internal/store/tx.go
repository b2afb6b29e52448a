package store

import (
	"context"
	"errors"
	"net"
)

// ErrConnection marks failures of the database connection itself, as opposed to
// failures of a statement. Implementations wrap such errors with it.
var ErrConnection = errors.New("database connection failure")

// Row is a single-row query result.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row query result. Callers must Close it.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Tx is the statement surface available inside a transaction.
type Tx interface {
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// Runner executes fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type Runner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// IsConnectionError reports whether err came from the connection rather than
// the statement. Such errors make further writes pointless.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnection) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
