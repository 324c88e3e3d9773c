package models

import "time"

// AuthAttempt is one row per authentication attempt, successful or not.
// Append-only; rolling failure counts are computed over this table.
type AuthAttempt struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	IPAddress     string    `db:"ip_address" json:"ip_address"`
	Success       bool      `db:"success" json:"success"`
	FailureReason *string   `db:"failure_reason" json:"failure_reason,omitempty"`
	UserAgent     string    `db:"user_agent" json:"user_agent"`
	AttemptedAt   time.Time `db:"attempted_at" json:"attempted_at"`
}

// AccountLockout marks an (email, ip) pair as locked until a deadline.
type AccountLockout struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	IPAddress    string    `db:"ip_address" json:"ip_address"`
	LockedUntil  time.Time `db:"locked_until" json:"locked_until"`
	TriggerCount int       `db:"trigger_count" json:"trigger_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
