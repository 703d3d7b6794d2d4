// Package db implements the Postgres-backed order ledger
package db

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fulfillment/internal/config"
)

// A Queryable is anything a statement can be run against: the pool or a transaction
type Queryable interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// A DB is a wrapper for database pool
type DB struct {
	pool *pgxpool.Pool
}

// NewDBWithConfig creates a new instance of DB based on the configuration file.
// The first ping is retried so the worker can start before the database is ready.
func NewDBWithConfig(ctx context.Context, cfg *config.Config) (*DB, error) {
	if cfg == nil {
		return nil, errors.New("no config was provided")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, err
	}
	if cfg.Database.MaxOpenConnections > 0 {
		poolCfg.MaxConns = int32(cfg.Database.MaxOpenConnections)
	}
	poolCfg.MinConns = int32(cfg.Database.MinOpenConnections)
	poolCfg.MinIdleConns = int32(cfg.Database.MinIdleConnections)
	if cfg.Database.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	db := &DB{pool}

	err = retry.Do(
		func() error {
			return db.Ping(ctx)
		},
		retry.Attempts(uint(cfg.Database.Retry.MaxAttempts)),
		retry.Delay(cfg.Database.Retry.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Ping calls the pool's ping
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// WithTx wraps the function with database query in a transaction
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) (any, error)) (any, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}

	defer func() { _ = tx.Rollback(ctx) }()
	res, err := fn(tx)
	if err != nil {
		return nil, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the connection to the pool
func (db *DB) Close() {
	db.pool.Close()
}
