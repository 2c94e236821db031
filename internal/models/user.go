package models

import "time"

// User represents a marketplace account bound to a platform identity.
type User struct {
	ID              int64     `json:"id"`
	PlatformID      string    `json:"platform_id"`
	FirstName       string    `json:"first_name,omitempty"`
	LastName        string    `json:"last_name,omitempty"`
	Username        string    `json:"username,omitempty"`
	PhotoURL        string    `json:"photo_url,omitempty"`
	LanguageCode    string    `json:"language_code,omitempty"`
	IsPremium       bool      `json:"is_premium"`
	AllowsWriteToPM bool      `json:"allows_write_to_pm"`
	IsBot           bool      `json:"is_bot"`
	CreatedAt       time.Time `json:"created_at"`
	LastActiveAt    time.Time `json:"last_active_at"`
}

// UserStats aggregates directory-wide user counts.
type UserStats struct {
	Total     int64 `json:"total"`
	Active24h int64 `json:"active_24h"`
	Premium   int64 `json:"premium"`
}
