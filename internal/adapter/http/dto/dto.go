package dto

import (
	"time"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"
)

// CreateWalletRequest is the request body for opening a project wallet.
type CreateWalletRequest struct {
	ProjectID   string `json:"project_id" binding:"required,max=100,safe_id"`
	Currency    string `json:"currency,omitempty" binding:"omitempty,iso_currency"`
	QuoteAmount *int64 `json:"quote_amount,omitempty" binding:"omitempty,gte=0"`
}

// AdjustRequest is the request body for an administrative balance correction.
type AdjustRequest struct {
	Amount        int64  `json:"amount" binding:"required,ne=0"`
	Reason        string `json:"reason" binding:"required,max=500"`
	AllowNegative bool   `json:"allow_negative,omitempty"`
}

// WithdrawRequest is the request body for a vendor disbursement.
type WithdrawRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Reason string `json:"reason" binding:"required,max=500"`
}

// StatusRequest is the request body for a status transition.
type StatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active frozen closed"`
	Reason string `json:"reason" binding:"required,max=500"`
}

// ListQuery binds paging and filter query parameters.
type ListQuery struct {
	Status   string `form:"status" binding:"omitempty,oneof=pending active frozen closed"`
	Page     int    `form:"page" binding:"omitempty,gte=1"`
	PageSize int    `form:"page_size" binding:"omitempty,gte=1,lte=100"`
}

// WalletResponse is the full administrative wallet record.
type WalletResponse struct {
	ID             string                `json:"id"`
	ProjectID      string                `json:"project_id"`
	Balance        int64                 `json:"balance"`
	BalanceDisplay string                `json:"balance_display"`
	Currency       string                `json:"currency"`
	Status         string                `json:"status"`
	Version        int64                 `json:"version"`
	Metadata       domain.WalletMetadata `json:"metadata"`
	QuoteAmount    *int64                `json:"quote_amount,omitempty"`
	CreatedAt      string                `json:"created_at"`
	UpdatedAt      string                `json:"updated_at"`
}

// LedgerEntryResponse is one ledger line.
type LedgerEntryResponse struct {
	ID               string `json:"id"`
	EventID          string `json:"event_id"`
	WalletID         string `json:"wallet_id"`
	Type             string `json:"type"`
	Amount           int64  `json:"amount"`
	ResultingBalance int64  `json:"resulting_balance"`
	Reason           string `json:"reason,omitempty"`
	Actor            string `json:"actor"`
	CreatedAt        string `json:"created_at"`
}

// MutationResponse is returned by deposit, adjust and withdraw.
type MutationResponse struct {
	Wallet   WalletResponse      `json:"wallet"`
	Entry    LedgerEntryResponse `json:"entry"`
	Replayed bool                `json:"replayed"`
}

// DepositAckResponse acknowledges a verified deposit that could not be applied.
type DepositAckResponse struct {
	Applied bool   `json:"applied"`
	EventID string `json:"event_id,omitempty"`
	Reason  string `json:"reason"`
}

// ListResponse wraps a paginated list.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewListResponse computes total pages for a page of items.
func NewListResponse[T any](items []T, total int64, page, pageSize int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return ListResponse[T]{Items: items, Total: total, Page: page, PageSize: pageSize, TotalPages: totalPages}
}

// NewWalletResponse maps a wallet; display formats the balance in major units.
func NewWalletResponse(w *domain.Wallet, display func(int64, string) string) WalletResponse {
	return WalletResponse{
		ID:             w.ID.String(),
		ProjectID:      w.ProjectID,
		Balance:        w.Balance,
		BalanceDisplay: display(w.Balance, w.Currency),
		Currency:       w.Currency,
		Status:         string(w.Status),
		Version:        w.Version,
		Metadata:       w.Metadata,
		QuoteAmount:    w.QuoteAmount,
		CreatedAt:      w.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      w.UpdatedAt.Format(time.RFC3339),
	}
}

func NewLedgerEntryResponse(e *domain.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:               e.ID.String(),
		EventID:          e.EventID,
		WalletID:         e.WalletID.String(),
		Type:             string(e.Type),
		Amount:           e.Amount,
		ResultingBalance: e.ResultingBalance,
		Reason:           e.Reason,
		Actor:            e.Actor,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339Nano),
	}
}

func NewMutationResponse(res *ports.MutationResult, display func(int64, string) string) MutationResponse {
	return MutationResponse{
		Wallet:   NewWalletResponse(res.Wallet, display),
		Entry:    NewLedgerEntryResponse(res.Entry),
		Replayed: res.Replayed,
	}
}
