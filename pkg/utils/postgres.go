// Package utils holds connection and transaction plumbing shared by the
// Postgres store and the Redis-backed workers.
package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresPoolConfig sizes the database/sql pool. Zero fields use defaults.
type PostgresPoolConfig struct {
	MaxConns    int
	MaxLifetime time.Duration
	PingTimeout time.Duration
}

// OpenPostgres opens and pings a pool. driverName is "pgx" (pgx stdlib);
// dsn carries the password and must not be logged.
func OpenPostgres(ctx context.Context, driverName, dsn string, pool PostgresPoolConfig) (*sql.DB, error) {
	maxConns := pool.MaxConns
	if maxConns <= 0 {
		maxConns = 20
	}
	lifetime := pool.MaxLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	ping := pool.PingTimeout
	if ping <= 0 {
		ping = 5 * time.Second
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(lifetime)

	if err := HealthCheck(ctx, db, ping); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// HealthCheck pings db within timeout.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// TxFunc is one unit of work on an open transaction.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// WithTx commits when fn returns nil and rolls back otherwise, including
// on panic, which is re-raised after the rollback.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err == nil {
			err = rbErr
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// Postgres SQLSTATE codes the store maps to domain conflicts.
const (
	pgUniqueViolation     = "23505"
	pgSerializationFailed = "40001"
	pgDeadlockDetected    = "40P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a unique constraint violation.
func IsUniqueViolation(err error) bool { return pgCode(err) == pgUniqueViolation }

// IsSerializationFailure reports a serialization failure or a deadlock
// victim. Either way the transaction was rolled back and may be retried.
func IsSerializationFailure(err error) bool {
	switch pgCode(err) {
	case pgSerializationFailed, pgDeadlockDetected:
		return true
	}
	return false
}
