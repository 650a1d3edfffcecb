package middleware

import (
	"encoding/json"
	"net/http"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// AuditDenied records authentication and authorization failures on the
// routes it wraps. Successful writes are audited by the services themselves.
func AuditDenied(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status != http.StatusUnauthorized && status != http.StatusForbidden {
			return
		}

		role, _ := c.Get(CtxRole)
		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": status,
			"role":   role,
		})

		actor := ActorID(c)
		if actor == "" {
			actor = "anonymous"
		}
		entry := domain.NewAuditLog(domain.AuditActionAccessDenied, nil, actor, string(details))
		entry.IPAddress = c.ClientIP()
		auditSvc.Log(c.Request.Context(), entry)
	}
}
