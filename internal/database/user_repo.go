package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"lotmarket/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepo handles user database operations
type UserRepo struct{}

// NewUserRepo creates a new user repository
func NewUserRepo() *UserRepo {
	return &UserRepo{}
}

const userColumns = `id, platform_id, first_name, last_name, username, photo_url,
	       language_code, is_premium, allows_write_to_pm, is_bot, created_at, last_active_at`

// UpsertFromIdentity creates a user on first login for a platform identity
// and updates the mutable display fields on every subsequent login. The
// unique constraint on platform_id makes concurrent logins safe.
func (r *UserRepo) UpsertFromIdentity(identity *models.IdentityUser) (*models.User, error) {
	platformID := strconv.FormatInt(identity.ID, 10)

	_, err := DB.Exec(`
		INSERT INTO users (platform_id, first_name, last_name, username, photo_url,
			language_code, is_premium, allows_write_to_pm, is_bot, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			username = excluded.username,
			photo_url = excluded.photo_url,
			language_code = excluded.language_code,
			is_premium = excluded.is_premium,
			allows_write_to_pm = excluded.allows_write_to_pm,
			is_bot = excluded.is_bot,
			last_active_at = excluded.last_active_at
	`, platformID, identity.FirstName, identity.LastName, identity.Username, identity.PhotoURL,
		identity.LanguageCode, identity.IsPremium, identity.AllowsWriteToPM, identity.IsBot,
		time.Now(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	return r.GetByPlatformID(platformID)
}

// GetByID retrieves a user by ID
func (r *UserRepo) GetByID(id int64) (*models.User, error) {
	row := DB.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetByPlatformID retrieves a user by platform identity id
func (r *UserRepo) GetByPlatformID(platformID string) (*models.User, error) {
	row := DB.QueryRow(`SELECT `+userColumns+` FROM users WHERE platform_id = ?`, platformID)
	return scanUser(row)
}

// TouchLastActive bumps the user's last active timestamp
func (r *UserRepo) TouchLastActive(id int64) error {
	_, err := DB.Exec("UPDATE users SET last_active_at = ? WHERE id = ?", time.Now(), id)
	return err
}

// List retrieves users ordered by creation time, newest first
func (r *UserRepo) List(offset, limit int) ([]*models.User, error) {
	rows, err := DB.Query(`
		SELECT `+userColumns+`
		FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Stats returns directory-wide user counts
func (r *UserRepo) Stats() (*models.UserStats, error) {
	stats := &models.UserStats{}

	if err := DB.QueryRow("SELECT COUNT(*) FROM users").Scan(&stats.Total); err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	if err := DB.QueryRow("SELECT COUNT(*) FROM users WHERE last_active_at >= ?", cutoff).Scan(&stats.Active24h); err != nil {
		return nil, err
	}
	if err := DB.QueryRow("SELECT COUNT(*) FROM users WHERE is_premium = 1").Scan(&stats.Premium); err != nil {
		return nil, err
	}

	return stats, nil
}

// Count returns the total number of users
func (r *UserRepo) Count() (int, error) {
	var count int
	err := DB.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.PlatformID, &user.FirstName, &user.LastName, &user.Username,
		&user.PhotoURL, &user.LanguageCode, &user.IsPremium, &user.AllowsWriteToPM,
		&user.IsBot, &user.CreatedAt, &user.LastActiveAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
