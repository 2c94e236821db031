package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"lotmarket/internal/models"
)

// signingKeyLabel is the domain-separation label the platform uses when
// deriving the assertion signing key from the bot secret.
const signingKeyLabel = "WebAppData"

var (
	ErrMissingHash     = errors.New("assertion hash is missing")
	ErrBadSignature    = errors.New("assertion signature mismatch")
	ErrStaleAssertion  = errors.New("assertion auth_date is too old")
	ErrBadAuthDate     = errors.New("assertion auth_date is missing or invalid")
	ErrBadUserPayload  = errors.New("assertion user payload is malformed")
	ErrEmptyAssertion  = errors.New("assertion is empty")
)

// InitData is a verified identity assertion.
type InitData struct {
	QueryID      string
	User         *models.IdentityUser
	AuthDate     time.Time
	ChatType     string
	ChatInstance string
	StartParam   string
}

// VerifyInitData validates a raw identity assertion against the shared
// bot secret. The assertion is a urlencoded set of key=value pairs
// carrying a hex HMAC in the hash field. maxAge bounds how old the
// embedded auth_date may be; every call site uses the shared session
// TTL so the freshness policy does not fork.
//
// Pure function over its inputs.
func VerifyInitData(raw, botSecret string, maxAge time.Duration) (*InitData, error) {
	if raw == "" {
		return nil, ErrEmptyAssertion
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("parse assertion: %w", err)
	}

	suppliedHash := values.Get("hash")
	if suppliedHash == "" {
		return nil, ErrMissingHash
	}
	values.Del("hash")

	authDateRaw := values.Get("auth_date")
	authDate, err := strconv.ParseInt(authDateRaw, 10, 64)
	if err != nil {
		return nil, ErrBadAuthDate
	}
	if time.Since(time.Unix(authDate, 0)) > maxAge {
		return nil, ErrStaleAssertion
	}

	expected := computeHash(values, botSecret)
	if !hmac.Equal([]byte(expected), []byte(suppliedHash)) {
		return nil, ErrBadSignature
	}

	data := &InitData{
		QueryID:      values.Get("query_id"),
		AuthDate:     time.Unix(authDate, 0),
		ChatType:     values.Get("chat_type"),
		ChatInstance: values.Get("chat_instance"),
		StartParam:   values.Get("start_param"),
	}

	if userRaw := values.Get("user"); userRaw != "" {
		user := &models.IdentityUser{}
		if err := json.Unmarshal([]byte(userRaw), user); err != nil {
			return nil, ErrBadUserPayload
		}
		data.User = user
	}

	return data, nil
}

// SignInitData computes the assertion signature over the given pairs.
// Used by tests and by the dev client to mint assertions.
func SignInitData(pairs map[string]string, botSecret string) string {
	values := url.Values{}
	for k, v := range pairs {
		if k == "hash" {
			continue
		}
		values.Set(k, v)
	}
	return computeHash(values, botSecret)
}

// EncodeInitData renders signed pairs as a raw assertion string.
func EncodeInitData(pairs map[string]string, botSecret string) string {
	values := url.Values{}
	for k, v := range pairs {
		values.Set(k, v)
	}
	values.Set("hash", SignInitData(pairs, botSecret))
	return values.Encode()
}

// ParseInitDataUnverified parses an assertion without checking its
// signature or freshness. Only reachable behind the explicit dev-mode
// configuration flag; never call it on a production path.
func ParseInitDataUnverified(raw string) (*InitData, error) {
	if raw == "" {
		return nil, ErrEmptyAssertion
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("parse assertion: %w", err)
	}

	data := &InitData{
		QueryID:      values.Get("query_id"),
		ChatType:     values.Get("chat_type"),
		ChatInstance: values.Get("chat_instance"),
		StartParam:   values.Get("start_param"),
	}
	if authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64); err == nil {
		data.AuthDate = time.Unix(authDate, 0)
	}
	if userRaw := values.Get("user"); userRaw != "" {
		user := &models.IdentityUser{}
		if err := json.Unmarshal([]byte(userRaw), user); err != nil {
			return nil, ErrBadUserPayload
		}
		data.User = user
	}
	return data, nil
}

func computeHash(values url.Values, botSecret string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	checkString := strings.Join(lines, "\n")

	// Signing key = HMAC-SHA256 over the bot secret, keyed by the
	// platform's fixed label.
	keyMAC := hmac.New(sha256.New, []byte(signingKeyLabel))
	keyMAC.Write([]byte(botSecret))
	signingKey := keyMAC.Sum(nil)

	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(checkString))
	return hex.EncodeToString(mac.Sum(nil))
}
