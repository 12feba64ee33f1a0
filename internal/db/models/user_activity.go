package models

import (
	"encoding/json"
	"time"
)

// UserActivity is one recorded action taken through the API.
type UserActivity struct {
	ID           int64            `db:"id" json:"id"`
	UserID       *int64           `db:"user_id" json:"user_id"`
	SessionID    *string          `db:"session_id" json:"session_id"`
	ActivityType string           `db:"activity_type" json:"activity_type"`
	Description  *string          `db:"description" json:"description"`
	URL          *string          `db:"url" json:"url"`
	Method       *string          `db:"method" json:"method"`
	StatusCode   *int             `db:"status_code" json:"status_code"`
	Properties   *json.RawMessage `db:"properties" json:"properties"`
	IPAddress    *string          `db:"ip_address" json:"ip_address"`
	UserAgent    *string          `db:"user_agent" json:"user_agent"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// ActivityTypeCount is one row of the activity-by-type aggregate.
type ActivityTypeCount struct {
	ActivityType string `db:"activity_type" json:"activity_type"`
	Count        int    `db:"total" json:"total"`
}
