package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lotmarket/internal/database"
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	if opts.BotSecret == "" && !opts.DevMode {
		opts.BotSecret = testSecret
	}
	return NewService(opts, zap.NewNop())
}

func TestService_Authenticate(t *testing.T) {
	svc := newTestService(t, Options{})

	assertion := EncodeInitData(freshPairs(), testSecret)
	result, err := svc.Authenticate(assertion, "10.0.0.9", "test-agent")
	require.NoError(t, err)
	assert.Len(t, result.Token, 64)
	assert.Equal(t, "42", result.User.PlatformID)
	assert.Equal(t, "Alice", result.User.FirstName)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), result.ExpiresAt, time.Minute)
}

func TestService_Authenticate_BadAssertion(t *testing.T) {
	svc := newTestService(t, Options{})

	cases := []struct {
		name      string
		assertion string
	}{
		{"empty", ""},
		{"unsigned", "user=%7B%22id%22%3A1%7D&auth_date=123"},
		{"wrong secret", EncodeInitData(freshPairs(), "some-other-secret")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Authenticate(tc.assertion, "", "")
			assert.ErrorIs(t, err, ErrInvalidAssertion)
		})
	}
}

func TestService_Authenticate_NoUserPayload(t *testing.T) {
	svc := newTestService(t, Options{})

	pairs := freshPairs()
	delete(pairs, "user")
	_, err := svc.Authenticate(EncodeInitData(pairs, testSecret), "", "")
	assert.ErrorIs(t, err, ErrInvalidAssertion)
}

func TestService_Authenticate_NoSecretConfigured(t *testing.T) {
	err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	svc := NewService(Options{}, zap.NewNop())

	_, err = svc.Authenticate(EncodeInitData(freshPairs(), testSecret), "", "")
	assert.ErrorIs(t, err, ErrNoBotSecret)
}

func TestService_Authenticate_DevModeSkipsSignature(t *testing.T) {
	svc := newTestService(t, Options{DevMode: true})

	// Unsigned assertion is accepted only in dev mode.
	result, err := svc.Authenticate("user=%7B%22id%22%3A7%2C%22first_name%22%3A%22Dev%22%7D&auth_date=1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "7", result.User.PlatformID)
}

func TestService_Verify(t *testing.T) {
	svc := newTestService(t, Options{})

	result, err := svc.Authenticate(EncodeInitData(freshPairs(), testSecret), "", "")
	require.NoError(t, err)

	user, session, err := svc.Verify(result.Token, 0)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, user.ID)
	assert.Equal(t, result.User.ID, session.UserID)

	// Matching owner passes, a different owner does not.
	_, _, err = svc.Verify(result.Token, result.User.ID)
	require.NoError(t, err)
	_, _, err = svc.Verify(result.Token, result.User.ID+1)
	assert.ErrorIs(t, err, ErrUserMismatch)

	_, _, err = svc.Verify("deadbeef", 0)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestService_Logout(t *testing.T) {
	svc := newTestService(t, Options{})

	result, err := svc.Authenticate(EncodeInitData(freshPairs(), testSecret), "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(result.Token, false))
	_, _, err = svc.Verify(result.Token, 0)
	assert.ErrorIs(t, err, ErrInvalidSession)

	// Logging out a dead token again is not an error.
	require.NoError(t, svc.Logout(result.Token, false))
}

func TestService_Logout_All(t *testing.T) {
	svc := newTestService(t, Options{})

	first, err := svc.Authenticate(EncodeInitData(freshPairs(), testSecret), "", "")
	require.NoError(t, err)
	second, err := svc.Authenticate(EncodeInitData(freshPairs(), testSecret), "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(second.Token, true))

	_, _, err = svc.Verify(first.Token, 0)
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, _, err = svc.Verify(second.Token, 0)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestService_Sessions(t *testing.T) {
	svc := newTestService(t, Options{})

	first, err := svc.Authenticate(EncodeInitData(freshPairs(), testSecret), "10.0.0.1", "agent-a")
	require.NoError(t, err)
	second, err := svc.Authenticate(EncodeInitData(freshPairs(), testSecret), "10.0.0.2", "agent-b")
	require.NoError(t, err)

	overview, err := svc.Sessions(second.Token)
	require.NoError(t, err)
	require.Len(t, overview.Sessions, 2)
	assert.Equal(t, int64(2), overview.Stats.Active)

	for _, info := range overview.Sessions {
		if info.IsCurrent {
			assert.Equal(t, second.Token, info.Token)
		} else {
			assert.Equal(t, maskedToken, info.Token)
		}
	}
	_ = first

	_, err = svc.Sessions("deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestService_CleanupExpired(t *testing.T) {
	// Dev mode keeps the assertion freshness window out of the way of
	// the very short session lifetime.
	svc := newTestService(t, Options{DevMode: true, SessionTTL: time.Millisecond})

	_, err := svc.Authenticate(EncodeInitData(freshPairs(), testSecret), "", "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	count, err := svc.CleanupExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = svc.CleanupExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestService_UserStats(t *testing.T) {
	svc := newTestService(t, Options{})

	_, err := svc.Authenticate(EncodeInitData(freshPairs(), testSecret), "", "")
	require.NoError(t, err)

	stats, err := svc.UserStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.Premium)
}
