package postgres

import (
	"context"
	"errors"
	"fmt"
)

// errSchemaMissing is returned when the database answers but the ledger
// tables have not been migrated.
var errSchemaMissing = errors.New("ledger schema not migrated")

const schemaProbe = `SELECT to_regclass('wallets') IS NOT NULL AND to_regclass('ledger_entries') IS NOT NULL`

// HealthCheck reports PostgreSQL as healthy once it answers and the
// wallets and ledger_entries tables exist.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	var ok bool
	if err := h.pool.QueryRow(ctx, schemaProbe).Scan(&ok); err != nil {
		return fmt.Errorf("probing postgres: %w", err)
	}
	if !ok {
		return errSchemaMissing
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
