package handler

import (
	"escrow-ledger/internal/adapter/http/dto"
	"escrow-ledger/internal/adapter/http/middleware"
	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/internal/service"
	"escrow-ledger/pkg/apperror"
	"escrow-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler serves the administrative wallet endpoints and balance reads.
type WalletHandler struct {
	wallets     ports.WalletService
	balances    ports.BalanceService
	adjustments ports.AdjustmentService
	lifecycle   ports.LifecycleManager
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(
	wallets ports.WalletService,
	balances ports.BalanceService,
	adjustments ports.AdjustmentService,
	lifecycle ports.LifecycleManager,
) *WalletHandler {
	return &WalletHandler{
		wallets:     wallets,
		balances:    balances,
		adjustments: adjustments,
		lifecycle:   lifecycle,
	}
}

// Create handles POST /wallet.
func (h *WalletHandler) Create(c *gin.Context) {
	var req dto.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	w, err := h.wallets.Create(c.Request.Context(), ports.CreateWalletRequest{
		ProjectID:   req.ProjectID,
		Currency:    req.Currency,
		QuoteAmount: req.QuoteAmount,
		ActorID:     middleware.ActorID(c),
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewWalletResponse(w, service.FormatMinor))
}

// List handles GET /wallet.
func (h *WalletHandler) List(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}

	params := ports.WalletListParams{Page: q.Page, PageSize: q.PageSize}
	if q.Status != "" {
		status := domain.WalletStatus(q.Status)
		params.Status = &status
	}

	wallets, total, err := h.wallets.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WalletResponse, 0, len(wallets))
	for i := range wallets {
		items = append(items, dto.NewWalletResponse(&wallets[i], service.FormatMinor))
	}
	page, pageSize := pageOrDefault(q.Page, q.PageSize)
	response.OK(c, dto.NewListResponse(items, total, page, pageSize))
}

// GetBalance handles GET /wallet/balance/:projectId.
// Projects without a wallet report status not_created rather than 404.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	view, err := h.balances.GetBalance(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// GetByProject handles GET /wallet/project/:projectId.
func (h *WalletHandler) GetByProject(c *gin.Context) {
	w, err := h.wallets.GetByProjectID(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWalletResponse(w, service.FormatMinor))
}

// ListLedger handles GET /wallet/:walletId/ledger.
func (h *WalletHandler) ListLedger(c *gin.Context) {
	walletID, ok := walletIDParam(c)
	if !ok {
		return
	}

	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}

	entries, total, err := h.wallets.ListLedger(c.Request.Context(), walletID, q.Page, q.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.LedgerEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.NewLedgerEntryResponse(&entries[i]))
	}
	page, pageSize := pageOrDefault(q.Page, q.PageSize)
	response.OK(c, dto.NewListResponse(items, total, page, pageSize))
}

// Adjust handles PATCH /wallet/:walletId/adjust.
func (h *WalletHandler) Adjust(c *gin.Context) {
	walletID, ok := walletIDParam(c)
	if !ok {
		return
	}

	var req dto.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	res, err := h.adjustments.Adjust(c.Request.Context(), ports.AdjustmentRequest{
		WalletID:      walletID,
		Amount:        req.Amount,
		Reason:        req.Reason,
		ActorID:       middleware.ActorID(c),
		AllowNegative: req.AllowNegative,
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewMutationResponse(res, service.FormatMinor))
}

// Withdraw handles POST /wallet/:walletId/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	walletID, ok := walletIDParam(c)
	if !ok {
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	res, err := h.adjustments.Withdraw(c.Request.Context(), ports.WithdrawalRequest{
		WalletID: walletID,
		Amount:   req.Amount,
		Reason:   req.Reason,
		ActorID:  middleware.ActorID(c),
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewMutationResponse(res, service.FormatMinor))
}

// UpdateStatus handles PATCH /wallet/:walletId/status.
func (h *WalletHandler) UpdateStatus(c *gin.Context) {
	walletID, ok := walletIDParam(c)
	if !ok {
		return
	}

	var req dto.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	w, err := h.lifecycle.TransitionStatus(c.Request.Context(), ports.StatusChangeRequest{
		WalletID: walletID,
		To:       domain.WalletStatus(req.Status),
		Reason:   req.Reason,
		ActorID:  middleware.ActorID(c),
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWalletResponse(w, service.FormatMinor))
}

// walletIDParam parses :walletId, writing a 400 when it is not a UUID.
func walletIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("walletId"))
	if err != nil {
		response.Error(c, apperror.InvalidRequest("walletId must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// pageOrDefault mirrors the paging defaults the services apply.
func pageOrDefault(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}
