package models

import "time"

// SecurityStatus is the authenticated user's view of their own account
// security state.
type SecurityStatus struct {
	Session        *Session   `json:"session"`
	ActiveSessions int        `json:"active_sessions"`
	RecentFailures int        `json:"recent_failures"`
	Locked         bool       `json:"locked"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	RiskScore      int        `json:"risk_score"`
	RiskReasons    []string   `json:"risk_reasons,omitempty"`
}
