package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wanderline/auth-api/internal/models"
)

// SessionRepository persists authenticated sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new instance of SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new active session row.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	const query = `INSERT INTO sessions (id, user_id, ip_address, user_agent, created_at, last_activity, expires_at, absolute_expiry, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)`
	if _, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.IPAddress, s.UserAgent, s.CreatedAt, s.LastActivity, s.ExpiresAt, s.AbsoluteExpiry,
	); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByID returns a session row regardless of its state.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT id, user_id, ip_address, user_agent, created_at, last_activity, expires_at, absolute_expiry, active, ended_at, end_reason
		FROM sessions WHERE id = $1 LIMIT 1`
	var s models.Session
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &s, nil
}

// Touch slides the idle expiry forward in a single statement, capped at the
// session's absolute ceiling. Rows already inactive are left untouched; the
// returned count tells the caller whether the extension happened.
func (r *SessionRepository) Touch(ctx context.Context, id string, now, idleExpiry time.Time) (bool, error) {
	const query = `UPDATE sessions
		SET last_activity = $2, expires_at = LEAST($3, absolute_expiry)
		WHERE id = $1 AND active = TRUE AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, id, now, idleExpiry)
	if err != nil {
		return false, fmt.Errorf("touch session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("touch session rows: %w", err)
	}
	return affected > 0, nil
}

// Invalidate deactivates a session, keeping the row for audit. Idempotent.
func (r *SessionRepository) Invalidate(ctx context.Context, id, reason string, endedAt time.Time) error {
	const query = `UPDATE sessions SET active = FALSE, ended_at = $2, end_reason = $3 WHERE id = $1 AND active = TRUE`
	if _, err := r.db.ExecContext(ctx, query, id, endedAt, reason); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// InvalidateUserSessions deactivates every active session for a user.
func (r *SessionRepository) InvalidateUserSessions(ctx context.Context, userID, reason string, endedAt time.Time) error {
	const query = `UPDATE sessions SET active = FALSE, ended_at = $2, end_reason = $3 WHERE user_id = $1 AND active = TRUE`
	if _, err := r.db.ExecContext(ctx, query, userID, endedAt, reason); err != nil {
		return fmt.Errorf("invalidate user sessions: %w", err)
	}
	return nil
}

// CountActiveByUser returns how many live sessions a user currently holds.
func (r *SessionRepository) CountActiveByUser(ctx context.Context, userID string, now time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND active = TRUE AND expires_at > $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, now); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}
