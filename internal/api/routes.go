package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"lotmarket/internal/auth"
)

var (
	authService   *auth.Service
	cleanupSecret string
	logger        *zap.Logger
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(api *echo.Group, authSvc *auth.Service, adminSecret string, log *zap.Logger, limiter *auth.RateLimiter) {
	authService = authSvc
	cleanupSecret = adminSecret
	logger = log

	// Health check (public)
	api.GET("/health", healthCheck)

	// Auth routes (public - identity assertion is the credential)
	authGroup := api.Group("/auth")
	authGroup.POST("/identity", identityHandler, limiter.Middleware())
	authGroup.POST("/verify", verifyHandler)
	authGroup.POST("/logout", logoutHandler)
	authGroup.GET("/sessions", sessionsHandler)

	// Admin routes (bearer cleanup credential)
	admin := api.Group("/admin")
	admin.POST("/cleanup-sessions", cleanupSessionsHandler)
	admin.GET("/users/stats", userStatsHandler)
	admin.GET("/events", eventsHandler)
}
