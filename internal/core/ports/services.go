package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"escrow-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// SignatureService handles HMAC-SHA256 signing and verification of raw payloads.
type SignatureService interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
}

// SecretProvider resolves webhook signing secrets by key id.
type SecretProvider interface {
	// Secret returns the secret for keyID. An empty keyID resolves the active key.
	Secret(keyID string) (string, bool)
	// All returns every live secret, used when the sender names no key.
	All() []string
}

// TokenService handles operator JWTs.
type TokenService interface {
	Generate(actorID string, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	ActorID string
	Role    domain.Role
}

// IdempotencyCache is the Redis-layer replay check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// BalanceCache holds short-lived balance views keyed by project id.
type BalanceCache interface {
	Get(ctx context.Context, projectID string) (*BalanceView, error) // nil on miss
	Set(ctx context.Context, projectID string, view *BalanceView, ttl time.Duration) error
	Invalidate(ctx context.Context, projectID string) error
}

// AuditService records audit entries without blocking the caller.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// WebhookProcessor applies signed deposit notifications from the payment processor.
type WebhookProcessor interface {
	ProcessDeposit(ctx context.Context, n DepositNotification) (*MutationResult, error)
}

// DepositNotification is an inbound webhook as received on the wire.
// RawBody must be the exact bytes the processor signed.
type DepositNotification struct {
	RawBody   []byte
	Signature string
	KeyID     string
	ClientIP  string
}

// DepositEvent is the parsed body of a deposit notification.
type DepositEvent struct {
	EventID   string `json:"event_id"`
	ProjectID string `json:"project_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// MutationResult describes one applied (or replayed) balance mutation.
type MutationResult struct {
	Wallet   *domain.Wallet
	Entry    *domain.LedgerEntry
	Replayed bool
	Attempts int
}

// AdjustmentService applies administrative credits, debits and withdrawals.
type AdjustmentService interface {
	Adjust(ctx context.Context, req AdjustmentRequest) (*MutationResult, error)
	Withdraw(ctx context.Context, req WithdrawalRequest) (*MutationResult, error)
}

// AdjustmentRequest targets a wallet by WalletID, or by ProjectID when WalletID is uuid.Nil.
type AdjustmentRequest struct {
	WalletID      uuid.UUID
	ProjectID     string
	Amount        int64 // signed
	Reason        string
	ActorID       string
	AllowNegative bool
	ClientIP      string
}

// WithdrawalRequest disburses funds from an active wallet. Amount is positive.
type WithdrawalRequest struct {
	WalletID uuid.UUID
	Amount   int64
	Reason   string
	ActorID  string
	ClientIP string
}

// BalanceService serves read-only balance views.
type BalanceService interface {
	GetBalance(ctx context.Context, projectID string) (*BalanceView, error)
}

// BalanceView is the public balance projection of a wallet.
// A project without a wallet yields Exists=false and status not_created.
type BalanceView struct {
	ProjectID      string                `json:"project_id"`
	WalletID       *uuid.UUID            `json:"wallet_id,omitempty"`
	Balance        int64                 `json:"balance"`
	BalanceDisplay string                `json:"balance_display"`
	Currency       string                `json:"currency"`
	Status         domain.WalletStatus   `json:"status"`
	Metadata       domain.WalletMetadata `json:"metadata"`
	QuoteAmount    *int64                `json:"quote_amount"`
	Exists         bool                  `json:"exists"`
}

// LifecycleManager owns the wallet status state machine.
type LifecycleManager interface {
	CanTransition(from, to domain.WalletStatus) bool
	Validate(from, to domain.WalletStatus) error
	CanAdjust(status domain.WalletStatus) bool
	CanDeposit(status domain.WalletStatus) bool
	CanWithdraw(status domain.WalletStatus) bool
	TransitionStatus(ctx context.Context, req StatusChangeRequest) (*domain.Wallet, error)
}

// StatusChangeRequest is an administrative status transition.
type StatusChangeRequest struct {
	WalletID uuid.UUID
	To       domain.WalletStatus
	Reason   string
	ActorID  string
	ClientIP string
}

// WalletService is the administrative entry point for wallet records.
type WalletService interface {
	Create(ctx context.Context, req CreateWalletRequest) (*domain.Wallet, error)
	GetByProjectID(ctx context.Context, projectID string) (*domain.Wallet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	List(ctx context.Context, params WalletListParams) ([]domain.Wallet, int64, error)
	ListLedger(ctx context.Context, walletID uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error)
}

// CreateWalletRequest is issued when a contract for the project is signed.
type CreateWalletRequest struct {
	ProjectID   string
	Currency    string // empty = configured default
	QuoteAmount *int64
	ActorID     string
	ClientIP    string
}

// Reconciler compares ledger sums with stored balances.
type Reconciler interface {
	ReconcileWallet(ctx context.Context, walletID uuid.UUID) (*ReconcileReport, error)
	ReconcileAll(ctx context.Context) (*ReconcileSummary, error)
}

// ReconcileReport is the outcome of checking one wallet.
// Drift is ledger sum minus balance.
type ReconcileReport struct {
	WalletID  uuid.UUID `json:"wallet_id"`
	ProjectID string    `json:"project_id"`
	Balance   int64     `json:"balance"`
	LedgerSum int64     `json:"ledger_sum"`
	Drift     int64     `json:"drift"`
	Healed    bool      `json:"healed"`
	CheckedAt time.Time `json:"checked_at"`
}

// ReconcileSummary aggregates a full reconciliation pass.
// Reports holds only wallets that drifted.
type ReconcileSummary struct {
	Checked  int               `json:"checked"`
	Drifted  int               `json:"drifted"`
	Healed   int               `json:"healed"`
	Failed   int               `json:"failed"`
	Reports  []ReconcileReport `json:"reports"`
	Duration time.Duration     `json:"duration_ns"`
}
