package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"lotmarket/internal/auth"
)

// identityRequest is the body of POST /api/auth/identity
type identityRequest struct {
	Assertion  string `json:"assertion"`
	StartParam string `json:"startParam,omitempty"`
}

// identityHandler handles POST /api/auth/identity
func identityHandler(c echo.Context) error {
	var req identityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	if req.Assertion == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "assertion is required",
		})
	}

	ipAddress := c.RealIP()
	userAgent := c.Request().UserAgent()

	result, err := authService.Authenticate(req.Assertion, ipAddress, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidAssertion):
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid identity assertion",
			})
		case errors.Is(err, auth.ErrNoBotSecret):
			logger.Error("bot secret is not configured")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "server configuration error",
			})
		default:
			logger.Error("identity authentication failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "authentication failed",
			})
		}
	}

	return c.JSON(http.StatusOK, result)
}

// verifyRequest is the body of POST /api/auth/verify
type verifyRequest struct {
	SessionToken string `json:"sessionToken"`
	UserID       int64  `json:"userId,omitempty"`
}

// verifyHandler handles POST /api/auth/verify
func verifyHandler(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	if req.SessionToken == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "session token is required",
		})
	}

	user, session, err := authService.Verify(req.SessionToken, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserMismatch):
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "session does not belong to user",
			})
		case errors.Is(err, auth.ErrInvalidSession):
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "session expired or invalid",
			})
		default:
			logger.Error("session verification failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "verification failed",
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"user": user,
		"session": map[string]interface{}{
			"id":           session.ID,
			"expiresAt":    session.ExpiresAt,
			"lastActiveAt": session.LastActiveAt,
		},
	})
}

// logoutRequest is the body of POST /api/auth/logout
type logoutRequest struct {
	SessionToken string `json:"sessionToken"`
	LogoutAll    bool   `json:"logoutAll,omitempty"`
}

// logoutHandler handles POST /api/auth/logout
func logoutHandler(c echo.Context) error {
	var req logoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	if req.SessionToken == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "session token is required",
		})
	}

	if err := authService.Logout(req.SessionToken, req.LogoutAll); err != nil {
		logger.Error("logout failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "logout failed",
		})
	}

	message := "logged out"
	if req.LogoutAll {
		message = "logged out on all devices"
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
	})
}

// sessionsHandler handles GET /api/auth/sessions
func sessionsHandler(c echo.Context) error {
	token := getTokenFromRequest(c)
	if token == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "authentication required",
		})
	}

	overview, err := authService.Sessions(token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidSession) {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "session expired or invalid",
			})
		}
		logger.Error("session listing failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list sessions",
		})
	}

	return c.JSON(http.StatusOK, overview)
}

// cleanupSessionsHandler handles POST /api/admin/cleanup-sessions
func cleanupSessionsHandler(c echo.Context) error {
	if !checkCleanupSecret(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "unauthorized",
		})
	}

	count, err := authService.CleanupExpired()
	if err != nil {
		logger.Error("session cleanup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "cleanup failed",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"cleaned":   count,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// userStatsHandler handles GET /api/admin/users/stats
func userStatsHandler(c echo.Context) error {
	if !checkCleanupSecret(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "unauthorized",
		})
	}

	stats, err := authService.UserStats()
	if err != nil {
		logger.Error("user stats failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to load stats",
		})
	}

	return c.JSON(http.StatusOK, stats)
}
