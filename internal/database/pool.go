package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/market-stream/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := DSN(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// schema creates the quotes hypertable. Safe to run on every start.
const schema = `
CREATE TABLE IF NOT EXISTS quotes (
	ts             TIMESTAMPTZ      NOT NULL,
	symbol         TEXT             NOT NULL,
	price          DOUBLE PRECISION NOT NULL,
	open           DOUBLE PRECISION,
	high           DOUBLE PRECISION,
	low            DOUBLE PRECISION,
	volume         BIGINT,
	change         DOUBLE PRECISION,
	change_percent DOUBLE PRECISION,
	market_cap     DOUBLE PRECISION,
	pe_ratio       DOUBLE PRECISION,
	PRIMARY KEY (symbol, ts)
);
SELECT create_hypertable('quotes', 'ts', if_not_exists => TRUE);
`

// Migrate ensures the quote history table exists.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate quotes table: %w", err)
	}
	return nil
}
