package models

import "time"

// Session represents one authenticated device/browser instance. ExpiresAt
// slides forward on activity but never past AbsoluteExpiry. Rows are kept
// after invalidation for audit.
type Session struct {
	ID             string     `db:"id" json:"id"`
	UserID         string     `db:"user_id" json:"user_id"`
	IPAddress      string     `db:"ip_address" json:"ip_address"`
	UserAgent      string     `db:"user_agent" json:"user_agent"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	LastActivity   time.Time  `db:"last_activity" json:"last_activity"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	AbsoluteExpiry time.Time  `db:"absolute_expiry" json:"absolute_expiry"`
	Active         bool       `db:"active" json:"active"`
	EndedAt        *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	EndReason      *string    `db:"end_reason" json:"end_reason,omitempty"`
}
