package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lotmarket/internal/auth"
	"lotmarket/internal/database"
)

const (
	testBotSecret   = "123456:TEST-BOT-SECRET"
	testAdminSecret = "cleanup-credential"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	svc := auth.NewService(auth.Options{BotSecret: testBotSecret}, zap.NewNop())
	e := echo.New()
	RegisterRoutes(e.Group("/api"), svc, testAdminSecret, zap.NewNop(), auth.NewRateLimiter(1000, time.Minute, time.Minute))
	return e
}

func doJSON(e *echo.Echo, method, path, body, bearer string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func mintAssertion(t *testing.T, platformID int64) string {
	t.Helper()
	return auth.EncodeInitData(map[string]string{
		"user":      fmt.Sprintf(`{"id":%d,"first_name":"Alice","username":"alice"}`, platformID),
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
	}, testBotSecret)
}

func login(t *testing.T, e *echo.Echo, platformID int64) (token string, userID int64) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"assertion": mintAssertion(t, platformID)})
	rec := doJSON(e, http.MethodPost, "/api/auth/identity", string(body), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
		SessionToken string `json:"sessionToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.SessionToken, resp.User.ID
}

func TestIdentityHandler(t *testing.T) {
	e := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"assertion": mintAssertion(t, 42)})
	rec := doJSON(e, http.MethodPost, "/api/auth/identity", string(body), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		User struct {
			ID         int64  `json:"id"`
			PlatformID string `json:"platform_id"`
			FirstName  string `json:"first_name"`
		} `json:"user"`
		SessionToken string    `json:"sessionToken"`
		ExpiresAt    time.Time `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.SessionToken, 64)
	assert.Equal(t, "42", resp.User.PlatformID)
	assert.Equal(t, "Alice", resp.User.FirstName)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), resp.ExpiresAt, time.Minute)
}

func TestIdentityHandler_Errors(t *testing.T) {
	e := newTestServer(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"missing assertion", `{}`, http.StatusBadRequest},
		{"malformed body", `{`, http.StatusBadRequest},
		{"forged assertion", `{"assertion":"user=%7B%22id%22%3A1%7D&auth_date=1&hash=abcd"}`, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(e, http.MethodPost, "/api/auth/identity", tc.body, "")
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestVerifyHandler(t *testing.T) {
	e := newTestServer(t)
	token, userID := login(t, e, 42)

	body, _ := json.Marshal(map[string]any{"sessionToken": token, "userId": userID})
	rec := doJSON(e, http.MethodPost, "/api/auth/verify", string(body), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
		Session struct {
			ID        int64     `json:"id"`
			ExpiresAt time.Time `json:"expiresAt"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, userID, resp.User.ID)
	assert.NotZero(t, resp.Session.ID)
}

func TestVerifyHandler_Errors(t *testing.T) {
	e := newTestServer(t)
	token, userID := login(t, e, 42)

	t.Run("missing token", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/auth/verify", `{}`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("unknown token", func(t *testing.T) {
		rec := doJSON(e, http.MethodPost, "/api/auth/verify", `{"sessionToken":"deadbeef"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("wrong owner", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{"sessionToken": token, "userId": userID + 1})
		rec := doJSON(e, http.MethodPost, "/api/auth/verify", string(body), "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestLogoutHandler(t *testing.T) {
	e := newTestServer(t)
	token, _ := login(t, e, 42)

	body, _ := json.Marshal(map[string]any{"sessionToken": token})
	rec := doJSON(e, http.MethodPost, "/api/auth/logout", string(body), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	// The session is gone afterwards.
	rec = doJSON(e, http.MethodPost, "/api/auth/verify", string(body), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutHandler_All(t *testing.T) {
	e := newTestServer(t)
	first, _ := login(t, e, 42)
	second, _ := login(t, e, 42)

	body, _ := json.Marshal(map[string]any{"sessionToken": second, "logoutAll": true})
	rec := doJSON(e, http.MethodPost, "/api/auth/logout", string(body), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "all devices")

	for _, token := range []string{first, second} {
		verify, _ := json.Marshal(map[string]any{"sessionToken": token})
		rec := doJSON(e, http.MethodPost, "/api/auth/verify", string(verify), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestSessionsHandler(t *testing.T) {
	e := newTestServer(t)
	_, _ = login(t, e, 42)
	token, _ := login(t, e, 42)

	rec := doJSON(e, http.MethodGet, "/api/auth/sessions", "", token)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sessions []struct {
			Token     string `json:"sessionToken"`
			IsCurrent bool   `json:"is_current"`
		} `json:"sessions"`
		Stats struct {
			Active int64 `json:"active"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 2)
	assert.Equal(t, int64(2), resp.Stats.Active)
	for _, s := range resp.Sessions {
		if s.IsCurrent {
			assert.Equal(t, token, s.Token)
		} else {
			assert.Equal(t, "***hidden***", s.Token)
		}
	}
}

func TestSessionsHandler_Unauthorized(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/api/auth/sessions", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/auth/sessions", "", "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCleanupSessionsHandler(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/admin/cleanup-sessions", "", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/admin/cleanup-sessions", "", testAdminSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cleaned":0`)
}

func TestUserStatsHandler(t *testing.T) {
	e := newTestServer(t)
	_, _ = login(t, e, 42)

	rec := doJSON(e, http.MethodGet, "/api/admin/users/stats", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/admin/users/stats", "", testAdminSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Total)
}

func TestEventsHandler(t *testing.T) {
	e := newTestServer(t)
	token, _ := login(t, e, 42)

	body, _ := json.Marshal(map[string]any{"sessionToken": token})
	rec := doJSON(e, http.MethodPost, "/api/auth/logout", string(body), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/admin/events", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/admin/events", "", testAdminSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events []struct {
			Action string `json:"action"`
			UserID int64  `json:"user_id"`
		} `json:"events"`
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(2), resp.Total)
	assert.Equal(t, "auth.logout", resp.Events[0].Action)
	assert.Equal(t, "auth.login", resp.Events[1].Action)

	rec = doJSON(e, http.MethodGet, "/api/admin/events?action=auth.login", "", testAdminSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Total)

	rec = doJSON(e, http.MethodGet, "/api/admin/events?limit=bogus", "", testAdminSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	e := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
