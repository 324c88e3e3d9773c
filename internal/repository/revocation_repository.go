package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wanderline/auth-api/internal/models"
)

const revocationKeyPrefix = "auth:revoked:"

// RevocationRepository stores revoked-token entries in Redis, keyed by the
// SHA-256 of the token string. Entry TTL equals the token's remaining
// lifetime so the store prunes itself; no sweep job needed.
type RevocationRepository struct {
	client *redis.Client
}

// NewRevocationRepository constructs a revocation repository.
func NewRevocationRepository(client *redis.Client) *RevocationRepository {
	return &RevocationRepository{client: client}
}

// HashToken returns the hex SHA-256 digest used as the store key.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Add stores a revocation entry. Writing the same hash twice simply
// refreshes the same entry, which keeps Revoke idempotent.
func (r *RevocationRepository) Add(ctx context.Context, tokenHash string, entry models.RevocationEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		// Already past natural expiry; keep the entry briefly so an
		// in-flight verification still sees it.
		ttl = time.Minute
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal revocation entry: %w", err)
	}

	if err := r.client.Set(ctx, revocationKeyPrefix+tokenHash, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store revocation entry: %w", err)
	}
	return nil
}

// Get returns the revocation entry for a hash, or nil when absent. The
// verification path treats any non-nil entry as revoked and logs the
// stored reason.
func (r *RevocationRepository) Get(ctx context.Context, tokenHash string) (*models.RevocationEntry, error) {
	raw, err := r.client.Get(ctx, revocationKeyPrefix+tokenHash).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get revocation entry: %w", err)
	}

	var entry models.RevocationEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal revocation entry: %w", err)
	}
	return &entry, nil
}
