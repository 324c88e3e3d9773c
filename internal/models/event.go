package models

import "time"

// EventSeverity grades security events.
type EventSeverity string

const (
	SeverityLow      EventSeverity = "low"
	SeverityMedium   EventSeverity = "medium"
	SeverityHigh     EventSeverity = "high"
	SeverityCritical EventSeverity = "critical"
)

// Security event types recorded by the auth flows.
const (
	EventLoginSuccess    = "LOGIN_SUCCESS"
	EventLoginFailure    = "LOGIN_FAILURE"
	EventSignup          = "SIGNUP"
	EventLogout          = "LOGOUT"
	EventTokenRefreshed  = "TOKEN_REFRESHED"
	EventTokenRevoked    = "TOKEN_REVOKED"
	EventAccountLocked   = "ACCOUNT_LOCKED"
	EventLockoutCleared  = "LOCKOUT_CLEARED"
	EventFraudBlocked    = "FRAUD_BLOCKED"
	EventFraudFlagged    = "FRAUD_FLAGGED"
	EventRateLimited     = "RATE_LIMITED"
	EventPasswordChanged = "PASSWORD_CHANGED"
	EventAuditExported   = "AUDIT_EXPORTED"
)

// Actor identifies who or what triggered a security event.
type Actor struct {
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// SecurityEvent is an append-only audit record. Never deleted by the
// application.
type SecurityEvent struct {
	ID          string        `db:"id" json:"id"`
	EventType   string        `db:"event_type" json:"event_type"`
	Severity    EventSeverity `db:"severity" json:"severity"`
	Description string        `db:"description" json:"description"`
	UserID      *string       `db:"user_id" json:"user_id,omitempty"`
	Email       string        `db:"email" json:"email,omitempty"`
	IPAddress   string        `db:"ip_address" json:"ip_address"`
	UserAgent   string        `db:"user_agent" json:"user_agent"`
	Metadata    []byte        `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// EventFilter captures query criteria for listing security events.
type EventFilter struct {
	EventType string
	Severity  EventSeverity
	Email     string
	Since     *time.Time
	Limit     int
}
