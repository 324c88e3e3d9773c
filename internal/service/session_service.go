package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wanderline/auth-api/internal/models"
	"github.com/wanderline/auth-api/pkg/config"
)

type sessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Touch(ctx context.Context, id string, now, idleExpiry time.Time) (bool, error)
	Invalidate(ctx context.Context, id, reason string, endedAt time.Time) error
	InvalidateUserSessions(ctx context.Context, userID, reason string, endedAt time.Time) error
	CountActiveByUser(ctx context.Context, userID string, now time.Time) (int, error)
}

// SessionService manages authenticated session records: creation, sliding
// idle extension and invalidation. Terminal states are final; a session is
// never reactivated.
type SessionService struct {
	sessions sessionStore
	logger   *zap.Logger
	cfg      config.SessionConfig
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions sessionStore, logger *zap.Logger, cfg config.SessionConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{sessions: sessions, logger: logger, cfg: cfg}
}

// Create records a new active session with idle expiry now+idleWindow,
// capped later by the absolute ceiling set at creation.
func (s *SessionService) Create(ctx context.Context, userID, ip, userAgent string) (*models.Session, error) {
	now := time.Now().UTC()
	session := &models.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		IPAddress:      ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
		LastActivity:   now,
		ExpiresAt:      now.Add(s.cfg.IdleWindow),
		AbsoluteExpiry: now.Add(s.cfg.AbsoluteTTL),
		Active:         true,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Touch extends the session's idle expiry on an authenticated request.
// Returns false when the session is inactive or already past expiry, in
// which case the caller must treat it as expired.
func (s *SessionService) Touch(ctx context.Context, sessionID string) (bool, error) {
	now := time.Now().UTC()
	extended, err := s.sessions.Touch(ctx, sessionID, now, now.Add(s.cfg.IdleWindow))
	if err != nil {
		return false, fmt.Errorf("touch session: %w", err)
	}
	return extended, nil
}

// Invalidate deactivates a session, keeping its row for audit. Idempotent;
// no transition back from the terminal state.
func (s *SessionService) Invalidate(ctx context.Context, sessionID, reason string) error {
	if err := s.sessions.Invalidate(ctx, sessionID, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// InvalidateAllForUser ends every active session a user holds, e.g. after a
// password change.
func (s *SessionService) InvalidateAllForUser(ctx context.Context, userID, reason string) error {
	if err := s.sessions.InvalidateUserSessions(ctx, userID, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("invalidate user sessions: %w", err)
	}
	return nil
}

// IsValid reports whether the session exists, belongs to the user, is
// active and has not expired.
func (s *SessionService) IsValid(ctx context.Context, sessionID, userID string) (bool, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("load session: %w", err)
	}

	if session.UserID != userID || !session.Active {
		return false, nil
	}
	return time.Now().UTC().Before(session.ExpiresAt), nil
}

// Get returns the session row for status views.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

// ActiveCount returns how many live sessions the user holds right now.
func (s *SessionService) ActiveCount(ctx context.Context, userID string) (int, error) {
	return s.sessions.CountActiveByUser(ctx, userID, time.Now().UTC())
}
