package postgres

import (
	"context"
	"errors"
	"fmt"

	"escrow-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const ledgerColumns = `id, event_id, wallet_id, type, amount, resulting_balance, reason, actor, created_at`

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var (
		e         domain.LedgerEntry
		entryType string
	)
	err := row.Scan(&e.ID, &e.EventID, &e.WalletID, &entryType, &e.Amount,
		&e.ResultingBalance, &e.Reason, &e.Actor, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Type = domain.EntryType(entryType)
	return &e, nil
}

// Append records an entry within the mutation transaction.
// An already recorded event id yields domain.ErrDuplicateEvent; the
// transaction is then aborted and must be rolled back by the caller.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.EventID, e.WalletID, string(e.Type), e.Amount,
		e.ResultingBalance, e.Reason, e.Actor, e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateEvent
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// GetByEventID returns the entry recorded for an event id, or nil.
func (r *LedgerRepo) GetByEventID(ctx context.Context, eventID string) (*domain.LedgerEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE event_id = $1`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ledger entry by event id: %w", err)
	}
	return e, nil
}

// ListByWallet returns one page of a wallet's entries, newest first, and the total count.
func (r *LedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE wallet_id = $1`, walletID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := r.pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		walletID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, total, nil
}

// SumForWallet totals every entry amount for the wallet. Used by reconciliation only.
func (r *LedgerRepo) SumForWallet(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::bigint FROM ledger_entries WHERE wallet_id = $1`, walletID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return sum, nil
}
