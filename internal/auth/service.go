package auth

import (
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"lotmarket/internal/database"
	"lotmarket/internal/models"
)

var (
	// ErrInvalidAssertion deliberately covers every assertion failure
	// so responses give forgers no oracle for what went wrong.
	ErrInvalidAssertion = errors.New("invalid identity assertion")
	ErrInvalidSession   = errors.New("invalid or expired session")
	ErrUserMismatch     = errors.New("session does not belong to user")
	ErrNoBotSecret      = errors.New("bot secret is not configured")
)

// Options configures the auth service.
type Options struct {
	BotSecret  string
	SessionTTL time.Duration
	// DevMode skips assertion signature verification. Never enable in
	// production.
	DevMode bool
}

// Service handles authentication logic
type Service struct {
	users    *database.UserRepo
	sessions *database.SessionRepo
	events   *database.EventRepo
	opts     Options
	logger   *zap.Logger
}

// NewService creates a new auth service
func NewService(opts Options, logger *zap.Logger) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &Service{
		users:    database.NewUserRepo(),
		sessions: database.NewSessionRepo(),
		events:   database.NewEventRepo(),
		opts:     opts,
		logger:   logger,
	}
}

// recordEvent appends to the audit trail. A write failure never fails
// the operation being audited.
func (s *Service) recordEvent(userID int64, action, detail, ipAddress string) {
	if err := s.events.Record(userID, action, detail, ipAddress); err != nil {
		s.logger.Warn("failed to record auth event", zap.String("action", action), zap.Error(err))
	}
}

// SessionTTL reports the shared session lifetime. The client envelope
// freshness window uses the same constant; the server check remains the
// binding authority.
func (s *Service) SessionTTL() time.Duration {
	return s.opts.SessionTTL
}

// AuthResult is returned on successful identity authentication.
type AuthResult struct {
	User      *models.User `json:"user"`
	Token     string       `json:"sessionToken"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// Authenticate verifies a platform identity assertion, upserts the user
// and opens a fresh session.
func (s *Service) Authenticate(assertion, ipAddress, userAgent string) (*AuthResult, error) {
	if s.opts.BotSecret == "" && !s.opts.DevMode {
		return nil, ErrNoBotSecret
	}

	var data *InitData
	var err error
	if s.opts.DevMode {
		data, err = ParseInitDataUnverified(assertion)
	} else {
		data, err = VerifyInitData(assertion, s.opts.BotSecret, s.opts.SessionTTL)
	}
	if err != nil {
		s.logger.Warn("assertion rejected", zap.Error(err))
		s.recordEvent(0, models.EventLoginDenied, err.Error(), ipAddress)
		return nil, ErrInvalidAssertion
	}
	if data.User == nil {
		s.logger.Warn("assertion carried no user payload")
		s.recordEvent(0, models.EventLoginDenied, "no user payload", ipAddress)
		return nil, ErrInvalidAssertion
	}

	user, err := s.users.UpsertFromIdentity(data.User)
	if err != nil {
		return nil, err
	}

	token, session, err := s.sessions.Create(user.ID, ipAddress, userAgent, s.opts.SessionTTL)
	if err != nil {
		return nil, err
	}
	s.recordEvent(user.ID, models.EventLogin, "", ipAddress)

	return &AuthResult{
		User:      user,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Verify validates a session token. When userID is non-zero it must
// match the session's owner. The user's last-active timestamp is bumped
// on success.
func (s *Service) Verify(token string, userID int64) (*models.User, *models.Session, error) {
	session, err := s.sessions.Validate(token)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) || errors.Is(err, database.ErrSessionExpired) {
			return nil, nil, ErrInvalidSession
		}
		return nil, nil, err
	}

	if userID != 0 && session.UserID != userID {
		return nil, nil, ErrUserMismatch
	}

	user, err := s.users.GetByID(session.UserID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, nil, ErrInvalidSession
		}
		return nil, nil, err
	}

	if err := s.users.TouchLastActive(user.ID); err != nil {
		return nil, nil, err
	}
	user.LastActiveAt = time.Now()

	return user, session, nil
}

// Logout invalidates one session, or all sessions of its owner when
// logoutAll is set. Invalidating an already-dead session is fine.
func (s *Service) Logout(token string, logoutAll bool) error {
	session, err := s.sessions.Validate(token)
	if err != nil && !errors.Is(err, database.ErrSessionNotFound) && !errors.Is(err, database.ErrSessionExpired) {
		return err
	}

	if session == nil || !logoutAll {
		// Token no longer resolves to an owner, or a single logout was
		// asked for; deactivate just this token.
		if err := s.sessions.Invalidate(token); err != nil {
			return err
		}
		if session != nil {
			s.recordEvent(session.UserID, models.EventLogout, "", session.IPAddress)
		}
		return nil
	}

	if err := s.sessions.InvalidateAllForUser(session.UserID); err != nil {
		return err
	}
	s.recordEvent(session.UserID, models.EventLogoutAll, "", session.IPAddress)
	return nil
}

// SessionOverview lists a caller's active sessions with token values
// masked except for the session making the request.
type SessionOverview struct {
	Sessions []SessionInfo        `json:"sessions"`
	Stats    *models.SessionStats `json:"stats"`
}

// SessionInfo is the client-facing view of one session.
type SessionInfo struct {
	ID           int64     `json:"id"`
	Token        string    `json:"sessionToken"`
	IsCurrent    bool      `json:"is_current"`
	UserAgent    string    `json:"user_agent,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

const maskedToken = "***hidden***"

// Sessions validates the caller's token and returns their active
// sessions plus aggregate stats.
func (s *Service) Sessions(token string) (*SessionOverview, error) {
	current, err := s.sessions.Validate(token)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) || errors.Is(err, database.ErrSessionExpired) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}

	active, err := s.sessions.ActiveByUserID(current.UserID)
	if err != nil {
		return nil, err
	}
	stats, err := s.sessions.StatsByUserID(current.UserID)
	if err != nil {
		return nil, err
	}

	overview := &SessionOverview{Stats: stats}
	for _, sess := range active {
		info := SessionInfo{
			ID:           sess.ID,
			Token:        maskedToken,
			IsCurrent:    sess.ID == current.ID,
			UserAgent:    sess.UserAgent,
			IPAddress:    sess.IPAddress,
			CreatedAt:    sess.CreatedAt,
			LastActiveAt: sess.LastActiveAt,
			ExpiresAt:    sess.ExpiresAt,
		}
		if info.IsCurrent {
			// Only the hash is at rest; echo the caller's own token back.
			info.Token = token
		}
		overview.Sessions = append(overview.Sessions, info)
	}

	return overview, nil
}

// CleanupExpired deactivates sessions past their expiry and reports how
// many were newly affected.
func (s *Service) CleanupExpired() (int64, error) {
	count, err := s.sessions.CleanupExpired()
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.recordEvent(0, models.EventSweep, strconv.FormatInt(count, 10), "")
	}
	return count, nil
}

// Events lists the authentication audit trail, newest first.
func (s *Service) Events(filter models.AuthEventFilter) ([]*models.AuthEvent, int64, error) {
	return s.events.List(filter)
}

// UserStats exposes directory-wide user counts for the admin surface.
func (s *Service) UserStats() (*models.UserStats, error) {
	return s.users.Stats()
}
