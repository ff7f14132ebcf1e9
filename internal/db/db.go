package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrRetryLimitExceeded wraps the last retryable error once every attempt failed.
var ErrRetryLimitExceeded = errors.New("transaction retry limit exceeded")

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

const DefaultMaxAttempts = 5

// TxOptions configures WithTx. The zero Isolation runs serializable.
type TxOptions struct {
	MaxAttempts int
	LockTimeout time.Duration
	Isolation   sql.IsolationLevel
}

// RowLockTxOptions is for units that take explicit row locks before reading
// what they write. Waiters on a lock see the holder's committed rows instead
// of failing with a serialization error.
func RowLockTxOptions(maxAttempts int, lockTimeout time.Duration) TxOptions {
	return TxOptions{MaxAttempts: maxAttempts, LockTimeout: lockTimeout, Isolation: sql.LevelReadCommitted}
}

type SQLXTxRunner struct {
	db   *sqlx.DB
	opts TxOptions
}

func NewTxRunner(db *sqlx.DB, opts TxOptions) SQLXTxRunner {
	return SQLXTxRunner{db: db, opts: opts}
}

func (r SQLXTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return WithTx(ctx, r.db, r.opts, fn)
}

func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// WithTx runs fn inside a transaction at opts.Isolation, retrying
// serialization failures, deadlocks and lock timeouts with backoff.
func WithTx(ctx context.Context, db *sqlx.DB, opts TxOptions, fn func(*sqlx.Tx) error) error {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := runOnce(ctx, db, opts, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt < maxAttempts {
			if err := sleepWithBackoff(ctx, attempt); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryLimitExceeded, maxAttempts, lastErr)
}

func runOnce(ctx context.Context, db *sqlx.DB, opts TxOptions, fn func(*sqlx.Tx) error) error {
	isolation := opts.Isolation
	if isolation == sql.LevelDefault {
		isolation = sql.LevelSerializable
	}
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}
	if opts.LockTimeout > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", opts.LockTimeout.Milliseconds())); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IsRetryable reports whether err is a transient Postgres conflict.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}

// ViolatedConstraint returns the constraint named by a Postgres error, if any.
func ViolatedConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

func sleepWithBackoff(ctx context.Context, attempt int) error {
	base := 20 * time.Millisecond
	backoff := time.Duration(attempt*attempt) * base
	jitter := time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
	timer := time.NewTimer(backoff + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
