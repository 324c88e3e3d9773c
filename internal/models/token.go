package models

import "time"

// RevocationEntry records a revoked token, keyed in the store by the SHA-256
// of the token string so the raw credential is never persisted. Entries live
// until the token's own expiry, after which the store prunes them via TTL.
type RevocationEntry struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
	RevokedAt time.Time `json:"revoked_at"`
}
