package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const walletColumns = `id, project_id, balance, currency, status, version,
	total_deposited, total_withdrawn, quote_amount, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var (
		w      domain.Wallet
		status string
	)
	err := row.Scan(
		&w.ID, &w.ProjectID, &w.Balance, &w.Currency, &status, &w.Version,
		&w.Metadata.TotalDeposited, &w.Metadata.TotalWithdrawn, &w.QuoteAmount,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.Status = domain.WalletStatus(status)
	return &w, nil
}

// Create inserts a new wallet. A second wallet for the same project yields domain.ErrWalletExists.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.ProjectID, w.Balance, w.Currency, string(w.Status), w.Version,
		w.Metadata.TotalDeposited, w.Metadata.TotalWithdrawn, w.QuoteAmount,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrWalletExists
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID fetches a wallet by its UUID.
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	w, err := scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByProjectID fetches the wallet owned by a project.
func (r *WalletRepo) GetByProjectID(ctx context.Context, projectID string) (*domain.Wallet, error) {
	w, err := scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE project_id = $1`, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by project id: %w", err)
	}
	return w, nil
}

// GetByIDTx reads a wallet inside a mutation attempt.
func (r *WalletRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	w, err := scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet in tx: %w", err)
	}
	return w, nil
}

// List returns one page of wallets, newest first, and the total count.
func (r *WalletRepo) List(ctx context.Context, params ports.WalletListParams) ([]domain.Wallet, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*params.Status))
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM wallets %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count wallets: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM wallets %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		walletColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, total, nil
}

// ListIDs returns every wallet id, for reconciliation scans.
func (r *WalletRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM wallets ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list wallet ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan wallet id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet ids: %w", err)
	}
	return ids, nil
}

// ApplyDelta adds amount to the balance if the stored version still equals
// expectedVersion. Positive deltas count toward total_deposited, negative
// ones toward total_withdrawn. Returns domain.ErrVersionConflict when the
// compare-and-set loses.
func (r *WalletRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount, expectedVersion int64) (*domain.Wallet, error) {
	query := `UPDATE wallets SET
			balance = balance + $1::bigint,
			total_deposited = total_deposited + GREATEST($1::bigint, 0),
			total_withdrawn = total_withdrawn + GREATEST(-$1::bigint, 0),
			version = version + 1,
			updated_at = NOW()
		WHERE id = $2 AND version = $3
		RETURNING ` + walletColumns

	w, err := scanWallet(tx.QueryRow(ctx, query, amount, walletID, expectedVersion))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVersionConflict
		}
		return nil, fmt.Errorf("apply wallet delta: %w", err)
	}
	return w, nil
}

// SetStatus changes the wallet status under the same version compare-and-set.
func (r *WalletRepo) SetStatus(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, status domain.WalletStatus, expectedVersion int64) (*domain.Wallet, error) {
	query := `UPDATE wallets SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
		RETURNING ` + walletColumns

	w, err := scanWallet(tx.QueryRow(ctx, query, string(status), walletID, expectedVersion))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVersionConflict
		}
		return nil, fmt.Errorf("set wallet status: %w", err)
	}
	return w, nil
}
