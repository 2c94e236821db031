package database

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"lotmarket/internal/models"
	"lotmarket/internal/passcrypt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// SessionRepo handles session database operations
type SessionRepo struct{}

// NewSessionRepo creates a new session repository
func NewSessionRepo() *SessionRepo {
	return &SessionRepo{}
}

const sessionColumns = `id, user_id, token_hash, created_at, expires_at, last_active_at,
	       ip_address, user_agent, active`

// Create creates a new session and returns the plain token
func (r *SessionRepo) Create(userID int64, ipAddress, userAgent string, ttl time.Duration) (string, *models.Session, error) {
	token, err := passcrypt.NewSessionToken()
	if err != nil {
		return "", nil, err
	}

	// Only the hash is stored at rest
	now := time.Now()
	session := &models.Session{
		UserID:       userID,
		TokenHash:    HashToken(token),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastActiveAt: now,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		Active:       true,
	}

	result, err := DB.Exec(`
		INSERT INTO sessions (user_id, token_hash, created_at, expires_at, last_active_at, ip_address, user_agent, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
	`, session.UserID, session.TokenHash, session.CreatedAt, session.ExpiresAt,
		session.LastActiveAt, session.IPAddress, session.UserAgent)
	if err != nil {
		return "", nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return "", nil, err
	}
	session.ID = id

	return token, session, nil
}

// Validate is the single authority on whether a token is still good.
// Not found or inactive returns ErrSessionNotFound. An expired session
// is flipped to inactive (conditionally, so concurrent validations
// cannot resurrect it) and returns ErrSessionExpired. A valid session
// has its last-active timestamp bumped.
func (r *SessionRepo) Validate(token string) (*models.Session, error) {
	tokenHash := HashToken(token)

	session := &models.Session{}
	err := DB.QueryRow(`
		SELECT `+sessionColumns+`
		FROM sessions WHERE token_hash = ? AND active = 1
	`, tokenHash).Scan(
		&session.ID, &session.UserID, &session.TokenHash,
		&session.CreatedAt, &session.ExpiresAt, &session.LastActiveAt,
		&session.IPAddress, &session.UserAgent, &session.Active,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if time.Now().After(session.ExpiresAt) {
		// The active flag only ever tightens, so this is safe to race.
		_, err := DB.Exec("UPDATE sessions SET active = 0 WHERE token_hash = ? AND active = 1", tokenHash)
		if err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	session.LastActiveAt = time.Now()
	_, err = DB.Exec("UPDATE sessions SET last_active_at = ? WHERE token_hash = ? AND active = 1",
		session.LastActiveAt, tokenHash)
	if err != nil {
		return nil, err
	}

	return session, nil
}

// Invalidate deactivates a session. Idempotent.
func (r *SessionRepo) Invalidate(token string) error {
	_, err := DB.Exec("UPDATE sessions SET active = 0 WHERE token_hash = ?", HashToken(token))
	return err
}

// InvalidateAllForUser deactivates every session of a user. Idempotent.
func (r *SessionRepo) InvalidateAllForUser(userID int64) error {
	_, err := DB.Exec("UPDATE sessions SET active = 0 WHERE user_id = ? AND active = 1", userID)
	return err
}

// Extend moves the expiry of an active session
func (r *SessionRepo) Extend(token string, newExpiresAt time.Time) (*models.Session, error) {
	result, err := DB.Exec(`
		UPDATE sessions SET expires_at = ?, last_active_at = ?
		WHERE token_hash = ? AND active = 1
	`, newExpiresAt, time.Now(), HashToken(token))
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrSessionNotFound
	}

	return r.getByTokenHash(HashToken(token))
}

// CleanupExpired bulk-deactivates sessions past their expiry. Returns
// the number of newly affected rows, so a repeated run reports zero.
func (r *SessionRepo) CleanupExpired() (int64, error) {
	result, err := DB.Exec("UPDATE sessions SET active = 0 WHERE active = 1 AND expires_at < ?", time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ActiveByUserID retrieves all active, unexpired sessions for a user
func (r *SessionRepo) ActiveByUserID(userID int64) ([]*models.Session, error) {
	rows, err := DB.Query(`
		SELECT `+sessionColumns+`
		FROM sessions WHERE user_id = ? AND active = 1 AND expires_at > ?
		ORDER BY last_active_at DESC
	`, userID, time.Now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session := &models.Session{}
		err := rows.Scan(
			&session.ID, &session.UserID, &session.TokenHash,
			&session.CreatedAt, &session.ExpiresAt, &session.LastActiveAt,
			&session.IPAddress, &session.UserAgent, &session.Active,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// StatsByUserID returns aggregate session counts for a user
func (r *SessionRepo) StatsByUserID(userID int64) (*models.SessionStats, error) {
	stats := &models.SessionStats{}

	if err := DB.QueryRow("SELECT COUNT(*) FROM sessions WHERE user_id = ?", userID).Scan(&stats.Total); err != nil {
		return nil, err
	}
	err := DB.QueryRow(
		"SELECT COUNT(*) FROM sessions WHERE user_id = ? AND active = 1 AND expires_at > ?",
		userID, time.Now(),
	).Scan(&stats.Active)
	if err != nil {
		return nil, err
	}

	var last sql.NullTime
	err = DB.QueryRow(
		"SELECT MAX(last_active_at) FROM sessions WHERE user_id = ? AND active = 1",
		userID,
	).Scan(&last)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		stats.LastActiveAt = &last.Time
	}

	return stats, nil
}

func (r *SessionRepo) getByTokenHash(tokenHash string) (*models.Session, error) {
	session := &models.Session{}
	err := DB.QueryRow(`
		SELECT `+sessionColumns+`
		FROM sessions WHERE token_hash = ?
	`, tokenHash).Scan(
		&session.ID, &session.UserID, &session.TokenHash,
		&session.CreatedAt, &session.ExpiresAt, &session.LastActiveAt,
		&session.IPAddress, &session.UserAgent, &session.Active,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// HashToken creates a SHA-256 hash of the token
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
