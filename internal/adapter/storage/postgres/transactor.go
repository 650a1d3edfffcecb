package postgres

import (
	"context"
	"fmt"
	"time"

	"escrow-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

var _ ports.DBTransactor = (*Transactor)(nil)

// Transactor implements ports.DBTransactor using pgxpool.Pool.
// Mutation attempts are short; a non-zero statement timeout bounds every
// statement inside the transaction so a stuck attempt fails fast.
type Transactor struct {
	pool             Pool
	statementTimeout time.Duration
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool, statementTimeout time.Duration) *Transactor {
	return &Transactor{pool: pool, statementTimeout: statementTimeout}
}

// Begin starts a new database transaction.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	if t.statementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", t.statementTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("set statement timeout: %w", err)
		}
	}
	return tx, nil
}
