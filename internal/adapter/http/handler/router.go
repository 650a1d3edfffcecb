package handler

import (
	"net/http"

	"escrow-ledger/internal/adapter/http/middleware"
	redisStore "escrow-ledger/internal/adapter/storage/redis"
	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc      ports.WalletService
	BalanceSvc     ports.BalanceService
	WebhookSvc     ports.WebhookProcessor
	AdjustmentSvc  ports.AdjustmentService
	LifecycleSvc   ports.LifecycleManager
	ReconcileSvc   ports.Reconciler
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = denied requests are not audited
	MetricsHandler http.Handler       // nil = /metrics not served
	MetricsPath    string
	OpenAPISpec    []byte // served under /swagger
	Webhook        WebhookHeaders
	Logger         zerolog.Logger
}

// WebhookHeaders names the headers carrying the deposit signature and key id.
type WebhookHeaders struct {
	Signature string
	KeyID     string
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsHandler != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.MetricsHandler))
	}

	docs := NewDocsHandler(deps.OpenAPISpec)
	swagger := r.Group("/swagger")
	{
		swagger.GET("", docs.UI)
		swagger.GET("/spec", docs.Spec)
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	walletHandler := NewWalletHandler(deps.WalletSvc, deps.BalanceSvc, deps.AdjustmentSvc, deps.LifecycleSvc)
	webhookHandler := NewWebhookHandler(deps.WebhookSvc, deps.Webhook.Signature, deps.Webhook.KeyID)
	reconcileHandler := NewReconcileHandler(deps.ReconcileSvc)

	wallet := r.Group("/wallet")

	// --- HMAC-authenticated (payment processor) ---
	wallet.POST("/webhook/deposit", rl("webhook_deposit"), webhookHandler.Deposit)

	// --- JWT-authenticated (operators) ---
	authed := wallet.Group("")
	if deps.AuditSvc != nil {
		authed.Use(middleware.AuditDenied(deps.AuditSvc))
	}
	authed.Use(middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	authed.GET("/balance/:projectId", rl("wallet_read"), walletHandler.GetBalance)

	admin := authed.Group("", middleware.RequireRole(domain.RoleAdmin), rl("wallet_admin"))
	{
		admin.POST("", walletHandler.Create)
		admin.GET("", walletHandler.List)
		admin.GET("/project/:projectId", walletHandler.GetByProject)
		admin.GET("/:walletId/ledger", walletHandler.ListLedger)
		admin.PATCH("/:walletId/adjust", walletHandler.Adjust)
		admin.POST("/:walletId/withdraw", walletHandler.Withdraw)
		admin.PATCH("/:walletId/status", walletHandler.UpdateStatus)
		admin.POST("/reconcile", reconcileHandler.Reconcile)
	}

	return r
}
