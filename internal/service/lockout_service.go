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

type attemptStore interface {
	Insert(ctx context.Context, a *models.AuthAttempt) error
	InsertFailureAndCount(ctx context.Context, a *models.AuthAttempt, since time.Time) (int, error)
	CountFailuresSince(ctx context.Context, email, ip string, since time.Time) (int, error)
	GetLockout(ctx context.Context, email, ip string) (*models.AccountLockout, error)
	UpsertLockout(ctx context.Context, lockout *models.AccountLockout) error
	DeleteLockout(ctx context.Context, email, ip string) error
}

// LockoutService counts failed authentication attempts per (email, ip) pair
// and locks the pair once the threshold is crossed within the rolling
// window. The same pair key is used for recording and checking so the two
// views can never diverge.
type LockoutService struct {
	attempts attemptStore
	logger   *zap.Logger
	cfg      config.LockoutConfig
}

// NewLockoutService constructs a LockoutService.
func NewLockoutService(attempts attemptStore, logger *zap.Logger, cfg config.LockoutConfig) *LockoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockoutService{attempts: attempts, logger: logger, cfg: cfg}
}

// RecordSuccess appends a successful attempt and clears any lockout for the
// pair, returning the account to the unlocked state.
func (s *LockoutService) RecordSuccess(ctx context.Context, email, ip, userAgent string) error {
	attempt := &models.AuthAttempt{
		ID:          uuid.NewString(),
		Email:       email,
		IPAddress:   ip,
		Success:     true,
		UserAgent:   userAgent,
		AttemptedAt: time.Now().UTC(),
	}
	if err := s.attempts.Insert(ctx, attempt); err != nil {
		return fmt.Errorf("record successful attempt: %w", err)
	}
	if err := s.attempts.DeleteLockout(ctx, email, ip); err != nil {
		s.logger.Warn("failed to clear lockout after success", zap.String("email", email), zap.Error(err))
	}
	return nil
}

// RecordFailure appends a failed attempt and, when the rolling-window count
// reaches the threshold, creates or refreshes a lockout. The insert and the
// count happen in one database statement, so concurrent failures cannot
// both read a stale pre-threshold count. Returns whether the pair is now
// locked and the current failure count.
func (s *LockoutService) RecordFailure(ctx context.Context, email, ip, reason, userAgent string) (locked bool, failures int, err error) {
	now := time.Now().UTC()
	attempt := &models.AuthAttempt{
		ID:            uuid.NewString(),
		Email:         email,
		IPAddress:     ip,
		Success:       false,
		FailureReason: &reason,
		UserAgent:     userAgent,
		AttemptedAt:   now,
	}

	count, err := s.attempts.InsertFailureAndCount(ctx, attempt, now.Add(-s.cfg.Window))
	if err != nil {
		return false, 0, fmt.Errorf("record failed attempt: %w", err)
	}

	if count < s.cfg.Threshold {
		return false, count, nil
	}

	lockout := &models.AccountLockout{
		ID:           uuid.NewString(),
		Email:        email,
		IPAddress:    ip,
		LockedUntil:  now.Add(s.cfg.Cooldown),
		TriggerCount: 1,
		CreatedAt:    now,
	}
	if err := s.attempts.UpsertLockout(ctx, lockout); err != nil {
		return false, count, fmt.Errorf("create lockout: %w", err)
	}

	return true, count, nil
}

// IsLocked reports whether a non-expired lockout exists for the pair.
// An expired lockout row is treated as unlocked; the row is cleared lazily
// on the next successful authentication.
func (s *LockoutService) IsLocked(ctx context.Context, email, ip string) (bool, *time.Time, error) {
	lockout, err := s.attempts.GetLockout(ctx, email, ip)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("check lockout: %w", err)
	}

	if time.Now().UTC().Before(lockout.LockedUntil) {
		until := lockout.LockedUntil
		return true, &until, nil
	}
	return false, nil, nil
}

// FailedCountInWindow returns failed attempts for the pair in the trailing
// window.
func (s *LockoutService) FailedCountInWindow(ctx context.Context, email, ip string, window time.Duration) (int, error) {
	return s.attempts.CountFailuresSince(ctx, email, ip, time.Now().UTC().Add(-window))
}

// Clear removes the lockout for the pair. Used by admin tooling and invoked
// automatically on the next successful authentication.
func (s *LockoutService) Clear(ctx context.Context, email, ip string) error {
	if err := s.attempts.DeleteLockout(ctx, email, ip); err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}
