package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// WalletStatus represents the lifecycle state of a project escrow wallet.
type WalletStatus string

const (
	// WalletStatusNotCreated is virtual: it is never persisted, only reported
	// for projects that have no wallet yet.
	WalletStatusNotCreated WalletStatus = "not_created"
	WalletStatusPending    WalletStatus = "pending"
	WalletStatusActive     WalletStatus = "active"
	WalletStatusFrozen     WalletStatus = "frozen"
	WalletStatusClosed     WalletStatus = "closed"
)

// Valid reports whether s is a known status.
func (s WalletStatus) Valid() bool {
	switch s {
	case WalletStatusNotCreated, WalletStatusPending, WalletStatusActive, WalletStatusFrozen, WalletStatusClosed:
		return true
	}
	return false
}

// WalletMetadata holds running totals maintained alongside the balance.
type WalletMetadata struct {
	TotalDeposited int64 `json:"total_deposited"`
	TotalWithdrawn int64 `json:"total_withdrawn"`
}

// Wallet is the per-project escrow account. Amounts are minor currency units.
type Wallet struct {
	ID          uuid.UUID      `json:"id"`
	ProjectID   string         `json:"project_id"`
	Balance     int64          `json:"balance"`
	Currency    string         `json:"currency"`
	Status      WalletStatus   `json:"status"`
	Version     int64          `json:"version"`
	Metadata    WalletMetadata `json:"metadata"`
	QuoteAmount *int64         `json:"quote_amount,omitempty"` // contract total, display only
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewWallet builds a fresh pending wallet with a zero balance.
func NewWallet(projectID, currency string, quoteAmount *int64) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Currency:    currency,
		Status:      WalletStatusPending,
		QuoteAmount: quoteAmount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Apply returns a copy of w with amount added to the balance and the running
// totals, and the version bumped. It mirrors what the store does on a
// successful compare-and-set and fails with ErrBalanceOverflow when any of
// the int64 columns would wrap.
func (w Wallet) Apply(amount int64) (Wallet, error) {
	if amount == math.MinInt64 {
		return Wallet{}, ErrBalanceOverflow
	}
	balance, ok := addInt64(w.Balance, amount)
	if !ok {
		return Wallet{}, ErrBalanceOverflow
	}
	if amount > 0 {
		if w.Metadata.TotalDeposited, ok = addInt64(w.Metadata.TotalDeposited, amount); !ok {
			return Wallet{}, ErrBalanceOverflow
		}
	} else {
		if w.Metadata.TotalWithdrawn, ok = addInt64(w.Metadata.TotalWithdrawn, -amount); !ok {
			return Wallet{}, ErrBalanceOverflow
		}
	}
	w.Balance = balance
	w.Version++
	return w, nil
}

func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}
