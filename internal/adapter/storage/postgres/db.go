package postgres

import (
	"context"
	"fmt"

	"escrow-ledger/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Pool is the subset of *pgxpool.Pool the repositories use.
// pgxmock.PgxPoolIface satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// uniqueViolation is the SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// NewPool creates a PostgreSQL connection pool using pgx.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("dbname", cfg.DBName).
		Int32("max_conns", cfg.MaxConns).
		Msg("PostgreSQL connection pool established")

	return pool, nil
}

// schema is applied idempotently on startup.
const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	id              UUID PRIMARY KEY,
	project_id      TEXT NOT NULL UNIQUE,
	balance         BIGINT NOT NULL DEFAULT 0,
	currency        CHAR(3) NOT NULL,
	status          TEXT NOT NULL CHECK (status IN ('pending', 'active', 'frozen', 'closed')),
	version         BIGINT NOT NULL DEFAULT 0,
	total_deposited BIGINT NOT NULL DEFAULT 0,
	total_withdrawn BIGINT NOT NULL DEFAULT 0,
	quote_amount    BIGINT,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wallets_status ON wallets(status);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id                UUID PRIMARY KEY,
	event_id          TEXT NOT NULL UNIQUE,
	wallet_id         UUID NOT NULL REFERENCES wallets(id),
	type              TEXT NOT NULL,
	amount            BIGINT NOT NULL CHECK (amount <> 0),
	resulting_balance BIGINT NOT NULL,
	reason            TEXT NOT NULL DEFAULT '',
	actor             TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_wallet ON ledger_entries(wallet_id, created_at DESC);

CREATE TABLE IF NOT EXISTS audit_logs (
	id         UUID PRIMARY KEY,
	wallet_id  UUID,
	actor_id   TEXT NOT NULL,
	action     TEXT NOT NULL,
	details    JSONB,
	ip_address TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_wallet ON audit_logs(wallet_id, created_at DESC);
`

// Migrate creates the wallet, ledger and audit tables if they do not exist.
func Migrate(ctx context.Context, pool Pool, log zerolog.Logger) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	log.Info().Msg("database schema up to date")
	return nil
}
