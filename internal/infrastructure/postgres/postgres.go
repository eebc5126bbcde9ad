package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Database wraps the pgx connection pool and a database/sql handle sharing it.
type Database struct {
	Pool *pgxpool.Pool
	DB   *sql.DB
}

// New establishes a new connection pool against the provided DSN.
func New(ctx context.Context, dsn string) (*Database, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &Database{Pool: pool, DB: stdlib.OpenDBFromPool(pool)}, nil
}

// Close drains the connection pool.
func (db *Database) Close() {
	if db == nil {
		return
	}
	if db.DB != nil {
		_ = db.DB.Close()
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
}
