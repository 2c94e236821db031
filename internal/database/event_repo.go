package database

import (
	"database/sql"
	"time"

	"lotmarket/internal/models"
)

// EventRepo handles the authentication audit trail.
type EventRepo struct{}

// NewEventRepo creates a new event repository
func NewEventRepo() *EventRepo {
	return &EventRepo{}
}

// Record appends an event with the current timestamp. userID may be
// zero when the actor is unknown, e.g. a rejected assertion.
func (r *EventRepo) Record(userID int64, action, detail, ipAddress string) error {
	var uid interface{}
	if userID != 0 {
		uid = userID
	}
	_, err := DB.Exec(`
		INSERT INTO auth_events (timestamp, user_id, action, detail, ip_address)
		VALUES (?, ?, ?, ?, ?)
	`, time.Now(), uid, action, detail, ipAddress)
	return err
}

// List retrieves events newest-first with pagination and optional
// filters, plus the total count matching the filter.
func (r *EventRepo) List(filter models.AuthEventFilter) ([]*models.AuthEvent, int64, error) {
	baseQuery := "FROM auth_events WHERE 1=1"
	args := []interface{}{}

	if filter.UserID != 0 {
		baseQuery += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		baseQuery += " AND action = ?"
		args = append(args, filter.Action)
	}
	if !filter.StartTime.IsZero() {
		baseQuery += " AND timestamp >= ?"
		args = append(args, filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		baseQuery += " AND timestamp <= ?"
		args = append(args, filter.EndTime)
	}

	var total int64
	if err := DB.QueryRow("SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT id, timestamp, user_id, action, detail, ip_address " + baseQuery
	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.AuthEvent
	for rows.Next() {
		event := &models.AuthEvent{}
		var userID sql.NullInt64
		var detail, ipAddress sql.NullString

		err := rows.Scan(&event.ID, &event.Timestamp, &userID, &event.Action, &detail, &ipAddress)
		if err != nil {
			return nil, 0, err
		}
		event.UserID = userID.Int64
		event.Detail = detail.String
		event.IPAddress = ipAddress.String
		events = append(events, event)
	}

	return events, total, rows.Err()
}

// PruneOlderThan deletes events before t and reports how many went.
func (r *EventRepo) PruneOlderThan(t time.Time) (int64, error) {
	result, err := DB.Exec("DELETE FROM auth_events WHERE timestamp < ?", t)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
