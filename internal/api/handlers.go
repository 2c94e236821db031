package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Health check
func healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// getTokenFromRequest extracts the bearer token from the request
func getTokenFromRequest(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// checkCleanupSecret authorizes admin endpoints against the server-held
// cleanup credential.
func checkCleanupSecret(c echo.Context) bool {
	if cleanupSecret == "" {
		return false
	}
	supplied := getTokenFromRequest(c)
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(cleanupSecret)) == 1
}
