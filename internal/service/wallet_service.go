package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// WalletService implements ports.WalletService.
type WalletService struct {
	wallets         ports.WalletRepository
	ledger          ports.LedgerRepository
	cache           ports.BalanceCache
	audit           ports.AuditService
	defaultCurrency string
	log             zerolog.Logger
}

// NewWalletService creates the wallet admin service. cache may be nil.
func NewWalletService(
	wallets ports.WalletRepository,
	ledger ports.LedgerRepository,
	cache ports.BalanceCache,
	audit ports.AuditService,
	defaultCurrency string,
	log zerolog.Logger,
) *WalletService {
	return &WalletService{
		wallets:         wallets,
		ledger:          ledger,
		cache:           cache,
		audit:           audit,
		defaultCurrency: defaultCurrency,
		log:             log,
	}
}

// Create opens a pending, zero-balance wallet for a project.
func (s *WalletService) Create(ctx context.Context, req ports.CreateWalletRequest) (*domain.Wallet, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return nil, apperror.InvalidRequest("project_id is required")
	}
	if req.QuoteAmount != nil && *req.QuoteAmount < 0 {
		return nil, apperror.InvalidRequest("quote_amount must not be negative")
	}

	currency := req.Currency
	if strings.TrimSpace(currency) == "" {
		currency = s.defaultCurrency
	}
	currency, ok := normalizeCurrency(currency)
	if !ok {
		return nil, apperror.InvalidRequest("currency must be a 3-letter ISO code")
	}

	w := domain.NewWallet(projectID, currency, req.QuoteAmount)
	if err := s.wallets.Create(ctx, w); err != nil {
		if errors.Is(err, domain.ErrWalletExists) {
			return nil, apperror.ErrWalletExists()
		}
		return nil, apperror.ErrDatabaseError(err)
	}

	// A not_created view may be cached from before the wallet existed.
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, projectID); err != nil {
			s.log.Warn().Err(err).Str("project_id", projectID).Msg("failed to invalidate balance cache")
		}
	}

	details, _ := json.Marshal(map[string]any{
		"project_id":   projectID,
		"currency":     currency,
		"quote_amount": req.QuoteAmount,
	})
	entry := domain.NewAuditLog(domain.AuditActionWalletCreate, &w.ID, req.ActorID, string(details))
	entry.IPAddress = req.ClientIP
	s.audit.Log(ctx, entry)

	s.log.Info().
		Str("wallet_id", w.ID.String()).
		Str("project_id", projectID).
		Str("currency", currency).
		Msg("wallet created")

	return w, nil
}

func (s *WalletService) GetByProjectID(ctx context.Context, projectID string) (*domain.Wallet, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, apperror.InvalidRequest("project_id is required")
	}
	w, err := s.wallets.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}

func (s *WalletService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}

func (s *WalletService) List(ctx context.Context, params ports.WalletListParams) ([]domain.Wallet, int64, error) {
	if params.Status != nil && !params.Status.Valid() {
		return nil, 0, apperror.InvalidRequest("unknown status filter")
	}
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)

	wallets, total, err := s.wallets.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(err)
	}
	return wallets, total, nil
}

// ListLedger returns one page of a wallet's entries, newest first.
func (s *WalletService) ListLedger(ctx context.Context, walletID uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	if _, err := s.GetByID(ctx, walletID); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)

	entries, total, err := s.ledger.ListByWallet(ctx, walletID, page, pageSize)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(err)
	}
	return entries, total, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// normalizeCurrency upper-cases s and reports whether it is three ASCII letters.
func normalizeCurrency(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return "", false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return "", false
		}
	}
	return s, true
}
