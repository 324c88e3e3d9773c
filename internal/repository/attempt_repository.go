package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wanderline/auth-api/internal/models"
)

// AttemptRepository records authentication attempts and account lockouts.
// Failure counting runs inside the database so concurrent failed logins
// cannot race past the lockout threshold in application code.
type AttemptRepository struct {
	db *sqlx.DB
}

// NewAttemptRepository creates a new instance of AttemptRepository.
func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Insert appends one attempt row.
func (r *AttemptRepository) Insert(ctx context.Context, a *models.AuthAttempt) error {
	const query = `INSERT INTO auth_attempts (id, email, ip_address, success, failure_reason, user_agent, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		a.ID, a.Email, a.IPAddress, a.Success, a.FailureReason, a.UserAgent, a.AttemptedAt,
	); err != nil {
		return fmt.Errorf("insert auth attempt: %w", err)
	}
	return nil
}

// InsertFailureAndCount appends a failed attempt and returns the failure
// count for the (email, ip) pair within the trailing window, including the
// new row, in one statement.
func (r *AttemptRepository) InsertFailureAndCount(ctx context.Context, a *models.AuthAttempt, since time.Time) (int, error) {
	const query = `WITH ins AS (
			INSERT INTO auth_attempts (id, email, ip_address, success, failure_reason, user_agent, attempted_at)
			VALUES ($1, $2, $3, FALSE, $4, $5, $6)
			RETURNING 1
		)
		SELECT COUNT(*) + (SELECT COUNT(*) FROM ins)
		FROM auth_attempts
		WHERE email = $2 AND ip_address = $3 AND success = FALSE AND attempted_at >= $7`
	var count int
	if err := r.db.GetContext(ctx, &count, query,
		a.ID, a.Email, a.IPAddress, a.FailureReason, a.UserAgent, a.AttemptedAt, since,
	); err != nil {
		return 0, fmt.Errorf("insert failure and count: %w", err)
	}
	return count, nil
}

// CountFailuresSince returns failed attempts for the pair in the window.
func (r *AttemptRepository) CountFailuresSince(ctx context.Context, email, ip string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM auth_attempts WHERE email = $1 AND ip_address = $2 AND success = FALSE AND attempted_at >= $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, email, ip, since); err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return count, nil
}

// CountAttemptsSince returns all attempts for the pair in the window,
// regardless of outcome. Used by the risk scorer as a velocity signal.
func (r *AttemptRepository) CountAttemptsSince(ctx context.Context, email, ip string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM auth_attempts WHERE email = $1 AND ip_address = $2 AND attempted_at >= $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, email, ip, since); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

// LastAttemptAt returns the timestamp of the most recent attempt for the
// pair, or nil when none exists.
func (r *AttemptRepository) LastAttemptAt(ctx context.Context, email, ip string) (*time.Time, error) {
	const query = `SELECT attempted_at FROM auth_attempts WHERE email = $1 AND ip_address = $2 ORDER BY attempted_at DESC LIMIT 1`
	var ts time.Time
	if err := r.db.GetContext(ctx, &ts, query, email, ip); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("last attempt at: %w", err)
	}
	return &ts, nil
}

// GetLockout returns the lockout row for the pair, or sql.ErrNoRows.
func (r *AttemptRepository) GetLockout(ctx context.Context, email, ip string) (*models.AccountLockout, error) {
	const query = `SELECT id, email, ip_address, locked_until, trigger_count, created_at FROM account_lockouts WHERE email = $1 AND ip_address = $2 LIMIT 1`
	var lockout models.AccountLockout
	if err := r.db.GetContext(ctx, &lockout, query, email, ip); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get lockout: %w", err)
	}
	return &lockout, nil
}

// UpsertLockout creates or refreshes the lockout for the pair. The unique
// constraint on (email, ip_address) makes concurrent upserts safe.
func (r *AttemptRepository) UpsertLockout(ctx context.Context, lockout *models.AccountLockout) error {
	const query = `INSERT INTO account_lockouts (id, email, ip_address, locked_until, trigger_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email, ip_address)
		DO UPDATE SET locked_until = EXCLUDED.locked_until, trigger_count = account_lockouts.trigger_count + 1`
	if _, err := r.db.ExecContext(ctx, query,
		lockout.ID, lockout.Email, lockout.IPAddress, lockout.LockedUntil, lockout.TriggerCount, lockout.CreatedAt,
	); err != nil {
		return fmt.Errorf("upsert lockout: %w", err)
	}
	return nil
}

// DeleteLockout removes the lockout for the pair. Idempotent.
func (r *AttemptRepository) DeleteLockout(ctx context.Context, email, ip string) error {
	const query = `DELETE FROM account_lockouts WHERE email = $1 AND ip_address = $2`
	if _, err := r.db.ExecContext(ctx, query, email, ip); err != nil {
		return fmt.Errorf("delete lockout: %w", err)
	}
	return nil
}
