package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"lotmarket/internal/models"
)

// eventsHandler handles GET /api/admin/events
func eventsHandler(c echo.Context) error {
	if !checkCleanupSecret(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "unauthorized",
		})
	}

	filter := models.AuthEventFilter{
		Action: c.QueryParam("action"),
		Limit:  50,
	}
	if v := c.QueryParam("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "invalid user_id",
			})
		}
		filter.UserID = id
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "invalid limit",
			})
		}
		filter.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "invalid offset",
			})
		}
		filter.Offset = n
	}

	events, total, err := authService.Events(filter)
	if err != nil {
		logger.Error("event listing failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list events",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}
