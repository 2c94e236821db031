package auth

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "123456:TEST-BOT-SECRET"

func freshPairs() map[string]string {
	return map[string]string{
		"user":      `{"id":42,"first_name":"Alice","last_name":"Smith","username":"alice","is_premium":true}`,
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
		"query_id":  "AAF9tG0aAAAAAH20bRrh",
		"chat_type": "sender",
	}
}

func TestVerifyInitData_Valid(t *testing.T) {
	raw := EncodeInitData(freshPairs(), testSecret)

	data, err := VerifyInitData(raw, testSecret, 24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, data.User)
	assert.Equal(t, int64(42), data.User.ID)
	assert.Equal(t, "Alice", data.User.FirstName)
	assert.Equal(t, "alice", data.User.Username)
	assert.True(t, data.User.IsPremium)
	assert.Equal(t, "sender", data.ChatType)
	assert.WithinDuration(t, time.Now(), data.AuthDate, time.Minute)
}

func TestVerifyInitData_TamperedField(t *testing.T) {
	raw := EncodeInitData(freshPairs(), testSecret)

	// Flipping a single character of any signed field must break the
	// signature.
	tampered := strings.Replace(raw, "Alice", "Alicf", 1)
	require.NotEqual(t, raw, tampered)

	_, err := VerifyInitData(tampered, testSecret, 24*time.Hour)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyInitData_WrongSecret(t *testing.T) {
	raw := EncodeInitData(freshPairs(), testSecret)

	_, err := VerifyInitData(raw, "another-secret", 24*time.Hour)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyInitData_MissingHash(t *testing.T) {
	_, err := VerifyInitData("auth_date=123&user=%7B%7D", testSecret, 24*time.Hour)
	assert.ErrorIs(t, err, ErrMissingHash)
}

func TestVerifyInitData_Empty(t *testing.T) {
	_, err := VerifyInitData("", testSecret, 24*time.Hour)
	assert.ErrorIs(t, err, ErrEmptyAssertion)
}

func TestVerifyInitData_AuthDate(t *testing.T) {
	tests := []struct {
		name     string
		authDate string
		maxAge   time.Duration
		wantErr  error
	}{
		{
			name:     "missing",
			authDate: "",
			maxAge:   24 * time.Hour,
			wantErr:  ErrBadAuthDate,
		},
		{
			name:     "non-numeric",
			authDate: "yesterday",
			maxAge:   24 * time.Hour,
			wantErr:  ErrBadAuthDate,
		},
		{
			name:     "stale",
			authDate: strconv.FormatInt(time.Now().Add(-48*time.Hour).Unix(), 10),
			maxAge:   24 * time.Hour,
			wantErr:  ErrStaleAssertion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs := freshPairs()
			if tt.authDate == "" {
				delete(pairs, "auth_date")
			} else {
				pairs["auth_date"] = tt.authDate
			}
			raw := EncodeInitData(pairs, testSecret)

			_, err := VerifyInitData(raw, testSecret, tt.maxAge)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyInitData_MalformedUserPayload(t *testing.T) {
	pairs := freshPairs()
	pairs["user"] = `{"id":not-json`
	raw := EncodeInitData(pairs, testSecret)

	_, err := VerifyInitData(raw, testSecret, 24*time.Hour)
	assert.ErrorIs(t, err, ErrBadUserPayload)
}

func TestParseInitDataUnverified(t *testing.T) {
	pairs := freshPairs()
	raw := EncodeInitData(pairs, "some-other-secret")

	// Signature is ignored entirely.
	data, err := ParseInitDataUnverified(raw)
	require.NoError(t, err)
	require.NotNil(t, data.User)
	assert.Equal(t, int64(42), data.User.ID)
}
