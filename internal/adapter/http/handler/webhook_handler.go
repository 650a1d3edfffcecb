package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"escrow-ledger/internal/adapter/http/dto"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/internal/service"
	"escrow-ledger/pkg/apperror"
	"escrow-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// Default webhook headers.
const (
	DefaultSignatureHeader = "X-Signature"
	DefaultKeyIDHeader     = "X-Signature-Key-Id"
)

// WebhookHandler receives signed deposit notifications from the payment processor.
type WebhookHandler struct {
	processor       ports.WebhookProcessor
	signatureHeader string
	keyIDHeader     string
}

// NewWebhookHandler creates a new WebhookHandler. Empty header names fall back
// to the defaults.
func NewWebhookHandler(processor ports.WebhookProcessor, signatureHeader, keyIDHeader string) *WebhookHandler {
	if signatureHeader == "" {
		signatureHeader = DefaultSignatureHeader
	}
	if keyIDHeader == "" {
		keyIDHeader = DefaultKeyIDHeader
	}
	return &WebhookHandler{
		processor:       processor,
		signatureHeader: signatureHeader,
		keyIDHeader:     keyIDHeader,
	}
}

// Deposit handles POST /wallet/webhook/deposit.
//
// The signature covers the raw body, so it is read before any parsing.
// A verified deposit that cannot be applied (unknown project, closed wallet)
// is acknowledged with 200 so the processor stops redelivering it; the
// rejection is audited for manual reconciliation.
func (h *WebhookHandler) Deposit(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, apperror.ErrPayloadTooLarge(tooLarge.Limit))
			return
		}
		response.Error(c, apperror.InvalidRequest("unreadable request body"))
		return
	}

	res, err := h.processor.ProcessDeposit(c.Request.Context(), ports.DepositNotification{
		RawBody:   body,
		Signature: c.GetHeader(h.signatureHeader),
		KeyID:     c.GetHeader(h.keyIDHeader),
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		if code, ok := acknowledgedRejection(err); ok {
			response.OK(c, dto.DepositAckResponse{
				Applied: false,
				EventID: eventIDOf(body),
				Reason:  code,
			})
			return
		}
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewMutationResponse(res, service.FormatMinor))
}

func acknowledgedRejection(err error) (string, bool) {
	for _, code := range []string{apperror.CodeWalletNotFound, apperror.CodeWalletNotAdjustable} {
		if apperror.HasCode(err, code) {
			return code, true
		}
	}
	return "", false
}

// eventIDOf pulls event_id from an already verified body for the ack.
func eventIDOf(body []byte) string {
	var evt ports.DepositEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return ""
	}
	return evt.EventID
}
