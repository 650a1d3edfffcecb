package handler

import (
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/pkg/apperror"
	"escrow-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReconcileHandler triggers on-demand reconciliation.
type ReconcileHandler struct {
	reconciler ports.Reconciler
}

// NewReconcileHandler creates a new ReconcileHandler.
func NewReconcileHandler(reconciler ports.Reconciler) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler}
}

// Reconcile handles POST /wallet/reconcile. With ?wallet_id= only that wallet
// is checked; otherwise every wallet is.
func (h *ReconcileHandler) Reconcile(c *gin.Context) {
	if raw := c.Query("wallet_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, apperror.InvalidRequest("wallet_id must be a UUID"))
			return
		}
		report, err := h.reconciler.ReconcileWallet(c.Request.Context(), id)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, report)
		return
	}

	summary, err := h.reconciler.ReconcileAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}
