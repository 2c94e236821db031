package models

import "time"

// AuthEvent is one record in the authentication audit trail.
type AuthEvent struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    int64     `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
}

// Auth event actions
const (
	EventLogin       = "auth.login"
	EventLoginDenied = "auth.login.denied"
	EventLogout      = "auth.logout"
	EventLogoutAll   = "auth.logout.all"
	EventSweep       = "session.sweep"
)

// AuthEventFilter narrows event listings.
type AuthEventFilter struct {
	UserID    int64
	Action    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}
