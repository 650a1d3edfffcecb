package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"

	"escrow-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx run inside a mutation attempt; writes are
// compare-and-set on version and return domain.ErrVersionConflict when
// the expected version no longer matches.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByProjectID(ctx context.Context, projectID string) (*domain.Wallet, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	List(ctx context.Context, params WalletListParams) ([]domain.Wallet, int64, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	ApplyDelta(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount, expectedVersion int64) (*domain.Wallet, error)
	SetStatus(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, status domain.WalletStatus, expectedVersion int64) (*domain.Wallet, error)
}

// WalletListParams holds filter + pagination for listing wallets.
type WalletListParams struct {
	Status   *domain.WalletStatus
	Page     int
	PageSize int
}

// LedgerRepository defines persistence for the append-only ledger.
// Append returns domain.ErrDuplicateEvent when the event id is already recorded.
type LedgerRepository interface {
	Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	GetByEventID(ctx context.Context, eventID string) (*domain.LedgerEntry, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error)
	SumForWallet(ctx context.Context, walletID uuid.UUID) (int64, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
