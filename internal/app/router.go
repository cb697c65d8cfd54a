// internal/app/router.go
package app

import (
	"chakula-service/internal/domain/user"
	auditHandler "chakula-service/internal/handlers/audit"
	authHandler "chakula-service/internal/handlers/auth"
	sessionHandler "chakula-service/internal/handlers/session"
	wsHandler "chakula-service/internal/handlers/ws"
	"chakula-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	AuthHandler    *authHandler.AuthHandler
	SessionHandler *sessionHandler.SessionHandler
	AuditHandler   *auditHandler.AuditHandler
	WSHandler      *wsHandler.WSHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.AuthMiddleware.Auth(), h.WSHandler.Connect)

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/login", h.AuthHandler.Login)
		authPublic.POST("/login/federated", h.AuthHandler.FederatedLogin)
		authPublic.POST("/refresh", h.AuthHandler.Refresh)
		authPublic.POST("/step-up/verify", h.AuthHandler.VerifyStepUp)
		authPublic.POST("/step-up/resend", h.AuthHandler.ResendStepUpCode)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.POST("/logout", h.AuthHandler.Logout)
		authProtected.POST("/logout-all", h.AuthHandler.LogoutAll)
		authProtected.GET("/sessions", h.SessionHandler.List)
		authProtected.DELETE("/sessions/:id", h.SessionHandler.Revoke)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireRole(user.RoleAdmin))
	{
		admin.GET("/audit", h.AuditHandler.Query)
	}
}
