package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// retryBaseDelay spaces out transaction retries; attempt n waits n times
// this long before rerunning.
const retryBaseDelay = 10 * time.Millisecond

// Retryable SQLSTATE codes: serialization_failure and deadlock_detected.
const (
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"
)

// TransactionManager runs functions inside database transactions. The
// open transaction travels in the context, so repository methods join it
// transparently through GetQueryInterface.
type TransactionManager struct {
	pool *pgxpool.Pool
}

// NewTransactionManager creates a transaction manager on the pool.
func NewTransactionManager(pool *pgxpool.Pool) *TransactionManager {
	return &TransactionManager{pool: pool}
}

// WithTransaction runs fn inside a transaction with default options,
// committing when fn returns nil and rolling back otherwise.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	tx, err := tm.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return runInTransaction(ctx, tx, fn)
}

// WithTransactionIsolation runs fn inside a transaction opened at the
// given isolation level.
func (tm *TransactionManager) WithTransactionIsolation(
	ctx context.Context,
	isolation pgx.TxIsoLevel,
	fn func(context.Context) error,
) error {
	tx, err := tm.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: isolation})
	if err != nil {
		return fmt.Errorf("failed to begin transaction with isolation level %s: %w", isolation, err)
	}
	return runInTransaction(ctx, tx, fn)
}

// runInTransaction stores tx in the context, runs fn, and settles the
// transaction according to fn's result.
func runInTransaction(ctx context.Context, tx pgx.Tx, fn func(context.Context) error) error {
	txCtx := context.WithValue(ctx, txContextKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			return fmt.Errorf("failed to rollback transaction after error %w: %w", err, rollbackErr)
		}
		return err
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("failed to commit transaction: %w", commitErr)
	}
	return nil
}

// WithTransactionRetry reruns fn in a fresh transaction when it fails
// with a deadlock, serialization conflict, or dropped connection, up to
// maxRetries extra attempts with linear backoff.
func (tm *TransactionManager) WithTransactionRetry(
	ctx context.Context,
	maxRetries int,
	fn func(context.Context) error,
) error {
	for attempt := 0; ; attempt++ {
		err := tm.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !isRetryableError(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * retryBaseDelay):
		}
	}
}

// isRetryableError reports whether rerunning the transaction has a chance
// of succeeding. Driver errors are classified by SQLSTATE; errors that
// arrive as plain text fall back to substring matching.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeSerializationFailure, pgCodeDeadlockDetected:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"deadlock detected",
		"could not serialize access",
		"connection reset by peer",
		"connection refused",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// txContextKey keys the open transaction inside a context.
type txContextKey struct{}

// GetTx returns the transaction stored in ctx, or nil when the context
// carries none.
func GetTx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// QueryInterface is the query surface shared by pools and transactions.
type QueryInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQueryInterface routes queries to the context's transaction when one
// is open, and to the pool otherwise.
func GetQueryInterface(ctx context.Context, pool *pgxpool.Pool) QueryInterface {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
