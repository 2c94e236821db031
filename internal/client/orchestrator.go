// Package client drives the password-protected session flow: it binds
// the server-issued session to a locally encrypted, password-gated
// envelope and walks the user through welcome, password setup, password
// entry and recovery after too many failed attempts.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"lotmarket/internal/models"
	"lotmarket/internal/client/storage"
	"lotmarket/internal/passcrypt"
)

// State names the screen the flow is on.
type State string

const (
	StateLoading       State = "loading"
	StateWelcome       State = "welcome"
	StatePasswordSetup State = "password-setup"
	StatePasswordEntry State = "password-entry"
	StateAuthenticated State = "authenticated"
	StateError         State = "error"
)

// Storage keys. The envelope and the attempt counter are deliberately
// independent containers: clearing one never corrupts the other.
const (
	keyEnvelope     = "encrypted_session"
	keyAttempts     = "password_attempts"
	keyWelcomeShown = "welcome_shown"
)

// MaxPasswordAttempts bounds consecutive failed decryptions before the
// envelope is discarded and the flow returns to password setup.
const MaxPasswordAttempts = 3

// SessionDuration is the client-side freshness window on the envelope.
// It intentionally equals the server session TTL, but it is only a UX
// fast-path: the server verify call is the binding authority.
const SessionDuration = 24 * time.Hour

// AssertionProvider obtains the raw platform identity assertion for
// this launch.
type AssertionProvider func(ctx context.Context) (assertion, startParam string, err error)

// Orchestrator is the client auth state machine. All transitions are
// serialized by an internal lock, so no two password submissions can
// race the attempt counter.
type Orchestrator struct {
	store     storage.Store
	api       API
	assertion AssertionProvider
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	state    State
	user     *models.User
	token    string
	attempts int
	lastErr  string
}

// NewOrchestrator wires the state machine. It starts in the loading
// state; call Init to resolve the first real state.
func NewOrchestrator(store storage.Store, api API, assertion AssertionProvider, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		api:       api,
		assertion: assertion,
		logger:    logger,
		now:       time.Now,
		state:     StateLoading,
	}
}

// State returns the current flow state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// User returns the authenticated user, or nil.
func (o *Orchestrator) User() *models.User {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.user
}

// SessionToken returns the live session token, or empty.
func (o *Orchestrator) SessionToken() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.token
}

// RemainingAttempts reports how many password attempts are left before
// the envelope is discarded.
func (o *Orchestrator) RemainingAttempts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return MaxPasswordAttempts - o.attempts
}

// LastError returns the message of the most recent recoverable error.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Init resolves the initial state: welcome on a first run, password
// entry when a fresh envelope exists, password setup otherwise. A stale
// envelope (last active beyond the freshness window) is discarded.
func (o *Orchestrator) Init(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	envelope, err := o.loadEnvelope(ctx)
	if err != nil {
		o.state = StateError
		o.lastErr = "storage is unavailable"
		return err
	}

	if envelope == nil {
		shown, err := o.store.Get(ctx, keyWelcomeShown)
		if err != nil {
			o.state = StateError
			o.lastErr = "storage is unavailable"
			return err
		}
		if shown == nil {
			o.state = StateWelcome
		} else {
			o.state = StatePasswordSetup
		}
		o.attempts = 0
		return nil
	}

	o.attempts = o.loadAttempts(ctx)
	o.state = StatePasswordEntry
	return nil
}

// CompleteWelcome acknowledges the welcome screen and moves to setup.
func (o *Orchestrator) CompleteWelcome(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateWelcome {
		return fmt.Errorf("welcome not active (state %s)", o.state)
	}
	if err := o.store.Set(ctx, keyWelcomeShown, []byte("true")); err != nil {
		// Losing the flag only re-shows the welcome next launch.
		o.logger.Warn("failed to persist welcome flag", zap.Error(err))
	}
	o.state = StatePasswordSetup
	return nil
}

// SetupPassword runs the first-login flow: local strength validation,
// identity authentication against the server, and creation of the
// encrypted envelope under the chosen password.
func (o *Orchestrator) SetupPassword(ctx context.Context, password string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StatePasswordSetup {
		return fmt.Errorf("password setup not active (state %s)", o.state)
	}

	if result := passcrypt.ValidateStrength(password); !result.IsValid {
		o.lastErr = result.Errors[0]
		return fmt.Errorf("weak password: %s", result.Errors[0])
	}

	assertion, startParam, err := o.assertion(ctx)
	if err != nil {
		o.lastErr = "platform identity is unavailable"
		return err
	}

	resp, err := o.api.Authenticate(ctx, assertion, startParam)
	if err != nil {
		o.lastErr = "authentication failed"
		return err
	}

	data := &SessionData{
		UserID:        resp.User.ID,
		PlatformID:    resp.User.PlatformID,
		SessionToken:  resp.Token,
		ExpiresAt:     o.now().Add(SessionDuration).UnixMilli(),
		IntegrityHash: IntegrityHash(resp.User.ID, resp.User.PlatformID),
	}
	if err := o.saveEnvelope(ctx, data, password); err != nil {
		o.lastErr = "failed to save session"
		return err
	}
	if err := o.saveAttempts(ctx, 0); err != nil {
		o.lastErr = "failed to save session"
		return err
	}

	o.user = resp.User
	o.token = resp.Token
	o.attempts = 0
	o.lastErr = ""
	o.state = StateAuthenticated
	return nil
}

// SubmitPassword runs the relaunch flow: decrypt the stored envelope,
// count failures, and re-validate the recovered token with the server.
func (o *Orchestrator) SubmitPassword(ctx context.Context, password string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StatePasswordEntry {
		return fmt.Errorf("password entry not active (state %s)", o.state)
	}

	envelope, err := o.loadEnvelope(ctx)
	if err != nil {
		o.state = StateError
		o.lastErr = "storage is unavailable"
		return err
	}
	if envelope == nil {
		// Envelope vanished between launches; start over.
		o.state = StatePasswordSetup
		o.attempts = 0
		return nil
	}

	data := o.decryptEnvelope(envelope, password)
	if data == nil {
		return o.recordFailedAttempt(ctx)
	}

	if o.now().UnixMilli() > data.ExpiresAt {
		o.clearSession(ctx)
		o.state = StatePasswordSetup
		o.attempts = 0
		o.lastErr = "session expired"
		return nil
	}

	user, err := o.api.Verify(ctx, data.SessionToken, data.UserID)
	if err != nil {
		if err == ErrUnauthorized {
			// Server revoked or expired the session; the envelope is
			// worthless now.
			o.clearSession(ctx)
			o.state = StatePasswordSetup
			o.attempts = 0
			o.lastErr = "session is no longer valid"
			return nil
		}
		// Transport failure: recoverable, does not consume an attempt.
		o.lastErr = "could not reach the server, try again"
		return err
	}

	// Refresh the envelope's freshness window under the same password.
	if err := o.saveEnvelope(ctx, data, password); err != nil {
		o.logger.Warn("failed to refresh envelope", zap.Error(err))
	}
	if err := o.saveAttempts(ctx, 0); err != nil {
		o.logger.Warn("failed to reset attempt counter", zap.Error(err))
	}

	o.user = user
	o.token = data.SessionToken
	o.attempts = 0
	o.lastErr = ""
	o.state = StateAuthenticated
	return nil
}

// Logout tells the server to drop the session (best effort) and clears
// the local envelope and counter unconditionally.
func (o *Orchestrator) Logout(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.token != "" {
		if err := o.api.Logout(ctx, o.token, false); err != nil {
			o.logger.Warn("server logout failed", zap.Error(err))
		}
	}

	o.clearSession(ctx)
	o.user = nil
	o.token = ""
	o.attempts = 0
	o.lastErr = ""
	o.state = StatePasswordSetup
	return nil
}

// recordFailedAttempt increments the counter; on the final failure it
// discards the envelope and returns the flow to password setup.
func (o *Orchestrator) recordFailedAttempt(ctx context.Context) error {
	o.attempts++

	if o.attempts >= MaxPasswordAttempts {
		o.clearSession(ctx)
		o.attempts = 0
		o.state = StatePasswordSetup
		o.lastErr = "too many failed attempts, session discarded"
		return nil
	}

	if err := o.saveAttempts(ctx, o.attempts); err != nil {
		o.logger.Warn("failed to persist attempt counter", zap.Error(err))
	}
	remaining := MaxPasswordAttempts - o.attempts
	if remaining == 1 {
		o.lastErr = "wrong password; one attempt left before the saved session is discarded"
	} else {
		o.lastErr = fmt.Sprintf("wrong password, %d attempts left", remaining)
	}
	return nil
}

func (o *Orchestrator) loadEnvelope(ctx context.Context) (*StoredEnvelope, error) {
	raw, err := o.store.Get(ctx, keyEnvelope)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	envelope := &StoredEnvelope{}
	if err := json.Unmarshal(raw, envelope); err != nil {
		// Corrupt envelope is unrecoverable; drop it.
		o.logger.Warn("discarding corrupt envelope", zap.Error(err))
		_ = o.store.Delete(ctx, keyEnvelope)
		return nil, nil
	}

	if o.now().UnixMilli()-envelope.LastActiveAt > SessionDuration.Milliseconds() {
		_ = o.store.Delete(ctx, keyEnvelope)
		return nil, nil
	}

	return envelope, nil
}

func (o *Orchestrator) saveEnvelope(ctx context.Context, data *SessionData, password string) error {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return err
	}
	blob, err := passcrypt.Encrypt(plaintext, password)
	if err != nil {
		return err
	}

	envelope := &StoredEnvelope{
		Encrypted:    blob.Ciphertext,
		Salt:         blob.Salt,
		IV:           blob.IV,
		LastActiveAt: o.now().UnixMilli(),
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return o.store.Set(ctx, keyEnvelope, raw)
}

// decryptEnvelope returns nil for anything that should count as a
// failed password attempt: decryption failure, unparseable plaintext,
// or an integrity hash mismatch.
func (o *Orchestrator) decryptEnvelope(envelope *StoredEnvelope, password string) *SessionData {
	plaintext, err := passcrypt.Decrypt(envelope.Encrypted, password, envelope.Salt, envelope.IV)
	if err != nil {
		return nil
	}

	data := &SessionData{}
	if err := json.Unmarshal(plaintext, data); err != nil {
		return nil
	}
	if !data.CheckIntegrity() {
		return nil
	}
	return data
}

func (o *Orchestrator) loadAttempts(ctx context.Context) int {
	raw, err := o.store.Get(ctx, keyAttempts)
	if err != nil || raw == nil {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0
	}
	if n > MaxPasswordAttempts {
		return MaxPasswordAttempts
	}
	return n
}

func (o *Orchestrator) saveAttempts(ctx context.Context, n int) error {
	return o.store.Set(ctx, keyAttempts, []byte(strconv.Itoa(n)))
}

func (o *Orchestrator) clearSession(ctx context.Context) {
	if err := o.store.Delete(ctx, keyEnvelope); err != nil {
		o.logger.Warn("failed to delete envelope", zap.Error(err))
	}
	if err := o.store.Delete(ctx, keyAttempts); err != nil {
		o.logger.Warn("failed to delete attempt counter", zap.Error(err))
	}
}
