package models

import "time"

// Session represents an authenticated client session.
// A session is valid iff Active is true and ExpiresAt is in the future.
type Session struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	TokenHash    string    `json:"-"` // Never expose in JSON
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Active       bool      `json:"active"`
}

// SessionStats aggregates a user's session history.
type SessionStats struct {
	Total        int64      `json:"total"`
	Active       int64      `json:"active"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}
