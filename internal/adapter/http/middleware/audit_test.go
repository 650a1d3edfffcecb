package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports/mocks"
	"escrow-ledger/pkg/apperror"
	"escrow-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAuditDenied_RecordsForbidden(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAudit := mocks.NewMockAuditService(ctrl)
	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionAccessDenied, e.Action)
		assert.Equal(t, "ops-bob", e.ActorID)
		assert.Contains(t, e.Details, `"status":403`)
		assert.Contains(t, e.Details, `"role":"viewer"`)
	})

	r := gin.New()
	r.Use(AuditDenied(mockAudit))
	r.PATCH("/wallet/:walletId/adjust", func(c *gin.Context) {
		c.Set(CtxActorID, "ops-bob")
		c.Set(CtxRole, domain.RoleViewer)
		c.Next()
	}, RequireRole(domain.RoleAdmin))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/wallet/abc/adjust", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuditDenied_AnonymousUnauthorized(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAudit := mocks.NewMockAuditService(ctrl)
	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e *domain.AuditLog) {
		assert.Equal(t, "anonymous", e.ActorID)
	})

	r := gin.New()
	r.Use(AuditDenied(mockAudit))
	r.GET("/wallet", func(c *gin.Context) {
		response.Error(c, apperror.ErrInvalidToken())
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallet", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuditDenied_IgnoresOtherStatuses(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAudit := mocks.NewMockAuditService(ctrl)

	r := gin.New()
	r.Use(AuditDenied(mockAudit))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { response.Error(c, apperror.ErrWalletNotFound()) })

	for _, path := range []string{"/ok", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}
}
