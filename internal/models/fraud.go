package models

import "time"

// ActivitySignals are the behavioural inputs to the risk scorer.
type ActivitySignals struct {
	Email         string
	IPAddress     string
	UserAgent     string
	Now           time.Time
	LastAttemptAt *time.Time
	RecentCount   int
}

// FraudAssessment is the per-request scoring result. Degraded marks an
// assessment where one or more signals could not be computed, so a clean
// score and a blind one are distinguishable in logs.
type FraudAssessment struct {
	RiskScore int      `json:"risk_score"`
	IsRisky   bool     `json:"is_risky"`
	Blocked   bool     `json:"blocked"`
	Reasons   []string `json:"reasons"`
	Degraded  bool     `json:"degraded"`
}
