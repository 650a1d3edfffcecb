package service

import (
	"context"
	"strings"
	"time"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// currencyExponents lists ISO 4217 minor-unit exponents that differ from 2.
var currencyExponents = map[string]int32{
	"JPY": 0, "KRW": 0, "VND": 0, "CLP": 0, "ISK": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "JOD": 3, "TND": 3,
}

// BalanceService implements ports.BalanceService.
type BalanceService struct {
	wallets ports.WalletRepository
	cache   ports.BalanceCache
	ttl     time.Duration
	group   singleflight.Group
	log     zerolog.Logger
}

// NewBalanceService creates the read-only balance endpoint. cache may be nil.
func NewBalanceService(wallets ports.WalletRepository, cache ports.BalanceCache, ttl time.Duration, log zerolog.Logger) *BalanceService {
	return &BalanceService{wallets: wallets, cache: cache, ttl: ttl, log: log}
}

// GetBalance returns the balance view for a project. A project without a
// wallet is not an error: it yields a zero view with status not_created.
func (s *BalanceService) GetBalance(ctx context.Context, projectID string) (*ports.BalanceView, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, apperror.InvalidRequest("project_id is required")
	}

	if s.cache != nil {
		view, err := s.cache.Get(ctx, projectID)
		if err != nil {
			s.log.Warn().Err(err).Str("project_id", projectID).Msg("balance cache read failed")
		} else if view != nil {
			return view, nil
		}
	}

	// The shared load must outlive any single caller; each caller still
	// stops waiting when its own context ends.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(projectID, func() (any, error) {
		w, err := s.wallets.GetByProjectID(loadCtx, projectID)
		if err != nil {
			return nil, apperror.ErrDatabaseError(err)
		}
		view := buildBalanceView(projectID, w)
		if s.cache != nil && s.ttl > 0 {
			if err := s.cache.Set(loadCtx, projectID, view, s.ttl); err != nil {
				s.log.Warn().Err(err).Str("project_id", projectID).Msg("balance cache write failed")
			}
		}
		return view, nil
	})

	var v any
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		v = res.Val
	}

	// Callers sharing a flight must not alias one view.
	view := *v.(*ports.BalanceView)
	return &view, nil
}

func buildBalanceView(projectID string, w *domain.Wallet) *ports.BalanceView {
	if w == nil {
		return &ports.BalanceView{
			ProjectID:      projectID,
			BalanceDisplay: "0",
			Status:         domain.WalletStatusNotCreated,
		}
	}
	id := w.ID
	return &ports.BalanceView{
		ProjectID:      projectID,
		WalletID:       &id,
		Balance:        w.Balance,
		BalanceDisplay: FormatMinor(w.Balance, w.Currency),
		Currency:       w.Currency,
		Status:         w.Status,
		Metadata:       w.Metadata,
		QuoteAmount:    w.QuoteAmount,
		Exists:         true,
	}
}

// FormatMinor renders a minor-unit amount in major units, e.g. 150050 INR -> "1500.50".
func FormatMinor(amount int64, currency string) string {
	exp, ok := currencyExponents[strings.ToUpper(currency)]
	if !ok {
		exp = 2
	}
	return decimal.New(amount, -exp).StringFixed(exp)
}
