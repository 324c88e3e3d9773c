package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/wanderline/auth-api/internal/models"
	appErrors "github.com/wanderline/auth-api/pkg/errors"
)

type userStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

// securityNotifier sends out-of-band notices; fire-and-forget.
type securityNotifier interface {
	SendEmail(to, subject, bodyHTML string)
}

// AuthService orchestrates the sign-up, sign-in, refresh and sign-out
// flows: lockout gate, credential check, fraud assessment, token issuance
// and session creation, with a security event for every exit path.
type AuthService struct {
	users      userStore
	validation *ValidationService
	tokens     *TokenService
	limiter    *RateLimitService
	lockouts   *LockoutService
	fraud      *FraudService
	sessions   *SessionService
	events     *EventService
	notifier   securityNotifier
	validator  *validator.Validate
	logger     *zap.Logger
	lockWindow time.Duration
}

// NewAuthService wires the orchestrator.
func NewAuthService(
	users userStore,
	validation *ValidationService,
	tokens *TokenService,
	limiter *RateLimitService,
	lockouts *LockoutService,
	fraud *FraudService,
	sessions *SessionService,
	events *EventService,
	notifier securityNotifier,
	validate *validator.Validate,
	logger *zap.Logger,
	lockWindow time.Duration,
) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      users,
		validation: validation,
		tokens:     tokens,
		limiter:    limiter,
		lockouts:   lockouts,
		fraud:      fraud,
		sessions:   sessions,
		events:     events,
		notifier:   notifier,
		validator:  validate,
		logger:     logger,
		lockWindow: lockWindow,
	}
}

// ConsumeAuthBudget counts one credential attempt against the fixed window
// for the ip:email pair, so stuffing one account cannot exhaust a NAT'd
// address and sweeping many accounts from one address is throttled per
// pair. An empty email (unparseable request body) falls back to the bare
// address. Nil-safe so transport-level callers need no wiring check.
func (s *AuthService) ConsumeAuthBudget(ctx context.Context, ip, email, userAgent string) error {
	if s == nil || s.limiter == nil {
		return nil
	}

	key := ip
	if email != "" {
		key = LoginKey(ip, email)
	}
	result := s.limiter.CheckAndConsume(ctx, ClassAuth, key)
	if result.Allowed {
		return nil
	}

	actor := models.Actor{Email: email, IPAddress: ip, UserAgent: userAgent}
	s.events.Log(ctx, models.EventRateLimited, models.SeverityMedium, "credential attempt rate limited", actor, map[string]interface{}{
		"class": string(ClassAuth),
	})
	return appErrors.RateLimited(result.RetryAfter)
}

// Signup registers a new account and signs it in. Every violated password
// rule is returned at once; the breach lookup is advisory and fails open.
func (s *AuthService) Signup(ctx context.Context, req models.SignupRequest) (*models.TokenPairResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signup payload")
	}
	if err := s.ConsumeAuthBudget(ctx, req.IP, req.Email, req.UserAgent); err != nil {
		return nil, err
	}

	var details []string
	if !s.validation.ValidateEmail(req.Email) {
		details = append(details, "email address is not valid")
	}

	check := s.validation.ValidatePasswordStrength(req.Password)
	details = append(details, check.Errors...)

	if len(details) == 0 {
		leaked, degraded := s.validation.CheckPasswordLeak(ctx, req.Password)
		if degraded {
			s.logger.Warn("breach lookup degraded during signup", zap.String("email", req.Email))
		}
		if leaked {
			details = append(details, "password appears in a known data breach")
		}
	}

	if len(details) > 0 {
		return nil, appErrors.Validation("password does not meet requirements", details)
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing account")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     s.validation.Sanitize(req.FullName),
		Role:         models.RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	actor := models.Actor{UserID: user.ID, Email: user.Email, IPAddress: req.IP, UserAgent: req.UserAgent}
	s.events.Log(ctx, models.EventSignup, models.SeverityLow, "account created", actor, nil)

	return s.establishSession(ctx, user, req.IP, req.UserAgent)
}

// Login authenticates credentials behind the lockout and fraud gates.
// A failed credential check always records the attempt before returning,
// so lockout counting is never bypassed by the early return.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.TokenPairResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	if err := s.ConsumeAuthBudget(ctx, req.IP, req.Email, req.UserAgent); err != nil {
		return nil, err
	}

	actor := models.Actor{Email: req.Email, IPAddress: req.IP, UserAgent: req.UserAgent}

	locked, until, err := s.lockouts.IsLocked(ctx, req.Email, req.IP)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "lockout check failed")
	}
	if locked {
		meta := map[string]interface{}{}
		if until != nil {
			meta["locked_until"] = until.Format(time.RFC3339)
		}
		s.events.Log(ctx, models.EventLoginFailure, models.SeverityMedium, "login rejected: account locked", actor, meta)
		return nil, appErrors.ErrAccountLocked
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.rejectCredentials(ctx, actor, "unknown email")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.Active {
		actor.UserID = user.ID
		return nil, s.rejectCredentials(ctx, actor, "inactive account")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		actor.UserID = user.ID
		return nil, s.rejectCredentials(ctx, actor, "wrong password")
	}

	actor.UserID = user.ID

	assessment := s.fraud.Assess(ctx, req.Email, req.IP, req.UserAgent)
	if assessment.Blocked {
		meta := map[string]interface{}{
			"risk_score": assessment.RiskScore,
			"reasons":    assessment.Reasons,
			"degraded":   assessment.Degraded,
		}
		s.events.Log(ctx, models.EventFraudBlocked, models.SeverityHigh, "login blocked by risk score", actor, meta)
		if _, _, err := s.lockouts.RecordFailure(ctx, req.Email, req.IP, "fraud block", req.UserAgent); err != nil {
			s.logger.Warn("failed to record fraud-blocked attempt", zap.Error(err))
		}
		return nil, appErrors.ErrFraudBlocked
	}
	if assessment.IsRisky {
		meta := map[string]interface{}{
			"risk_score": assessment.RiskScore,
			"reasons":    assessment.Reasons,
			"degraded":   assessment.Degraded,
		}
		s.events.Log(ctx, models.EventFraudFlagged, models.SeverityMedium, "risky login allowed", actor, meta)
	}

	if err := s.lockouts.RecordSuccess(ctx, req.Email, req.IP, req.UserAgent); err != nil {
		s.logger.Warn("failed to record successful attempt", zap.Error(err))
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.events.Log(ctx, models.EventLoginSuccess, models.SeverityLow, "login succeeded", actor, nil)

	return s.establishSession(ctx, user, req.IP, req.UserAgent)
}

// rejectCredentials records the failed attempt, possibly tripping a
// lockout, and returns the uniform 401. The reason never reaches the
// client; it goes to the audit trail only.
func (s *AuthService) rejectCredentials(ctx context.Context, actor models.Actor, reason string) error {
	nowLocked, failures, err := s.lockouts.RecordFailure(ctx, actor.Email, actor.IPAddress, reason, actor.UserAgent)
	if err != nil {
		s.logger.Error("failed to record failed attempt", zap.String("email", actor.Email), zap.Error(err))
	}

	meta := map[string]interface{}{"reason": reason, "failures_in_window": failures}
	s.events.Log(ctx, models.EventLoginFailure, models.SeverityLow, "login failed", actor, meta)

	if nowLocked {
		s.events.Log(ctx, models.EventAccountLocked, models.SeverityHigh, "account locked after repeated failures", actor, meta)
		s.notifier.SendEmail(actor.Email,
			"Your account has been temporarily locked",
			"<p>We noticed several failed sign-in attempts and locked your account for a short period. If this wasn't you, please reset your password.</p>",
		)
	}

	return appErrors.ErrInvalidCredentials
}

// establishSession creates the session and mints the token pair.
func (s *AuthService) establishSession(ctx context.Context, user *models.User, ip, userAgent string) (*models.TokenPairResponse, error) {
	session, err := s.sessions.Create(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	accessToken, expiresAt, err := s.tokens.IssueAccessToken(user, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue access token")
	}
	refreshToken, _, err := s.tokens.IssueRefreshToken(user.ID, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue refresh token")
	}

	issuedAt := time.Now().UTC()
	return &models.TokenPairResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(time.Until(expiresAt).Seconds()),
		IssuedAt:     issuedAt,
		User: models.UserInfo{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
			Role:     user.Role,
		},
	}, nil
}

// Refresh rotates a refresh token into a new token pair bound to the same
// session. The old refresh token is revoked so it cannot be replayed.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.RefreshResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	claims, err := s.tokens.VerifyRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}

	valid, err := s.sessions.IsValid(ctx, claims.SessionID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "session check failed")
	}
	if !valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session expired")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	if err := s.tokens.Revoke(ctx, req.RefreshToken, "rotated"); err != nil {
		s.logger.Warn("failed to revoke rotated refresh token", zap.Error(err))
	}

	if _, err := s.sessions.Touch(ctx, claims.SessionID); err != nil {
		s.logger.Warn("failed to touch session on refresh", zap.Error(err))
	}

	accessToken, expiresAt, err := s.tokens.IssueAccessToken(user, claims.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue access token")
	}
	refreshToken, _, err := s.tokens.IssueRefreshToken(user.ID, claims.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue refresh token")
	}

	actor := models.Actor{UserID: user.ID, Email: user.Email, IPAddress: req.IP, UserAgent: req.UserAgent}
	s.events.Log(ctx, models.EventTokenRefreshed, models.SeverityLow, "token pair rotated", actor, nil)

	return &models.RefreshResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(time.Until(expiresAt).Seconds()),
		IssuedAt:     time.Now().UTC(),
	}, nil
}

// Logout revokes the presented tokens and ends the session. Revoking an
// already revoked token is a no-op, so repeated logouts are safe.
func (s *AuthService) Logout(ctx context.Context, claims *models.AccessClaims, accessToken, refreshToken, ip, userAgent string) error {
	if err := s.tokens.Revoke(ctx, accessToken, "logout"); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke access token")
	}
	if refreshToken != "" {
		if err := s.tokens.Revoke(ctx, refreshToken, "logout"); err != nil {
			s.logger.Warn("failed to revoke refresh token on logout", zap.Error(err))
		}
	}

	if err := s.sessions.Invalidate(ctx, claims.SessionID, "logout"); err != nil {
		s.logger.Warn("failed to invalidate session on logout", zap.Error(err))
	}

	actor := models.Actor{UserID: claims.UserID, Email: claims.Email, IPAddress: ip, UserAgent: userAgent}
	s.events.Log(ctx, models.EventLogout, models.SeverityLow, "logout", actor, nil)
	s.events.Log(ctx, models.EventTokenRevoked, models.SeverityLow, "tokens revoked on logout", actor, nil)

	return nil
}

// ChangePassword rotates the password and ends every session the user
// holds, forcing a fresh sign-in everywhere.
func (s *AuthService) ChangePassword(ctx context.Context, claims *models.AccessClaims, req models.ChangePasswordRequest, ip, userAgent string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	check := s.validation.ValidatePasswordStrength(req.NewPassword)
	if !check.Valid {
		return appErrors.Validation("password does not meet requirements", check.Errors)
	}
	if leaked, _ := s.validation.CheckPasswordLeak(ctx, req.NewPassword); leaked {
		return appErrors.Validation("password does not meet requirements", []string{"password appears in a known data breach"})
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, string(newHash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if err := s.sessions.InvalidateAllForUser(ctx, user.ID, "password change"); err != nil {
		s.logger.Warn("failed to end sessions after password change", zap.Error(err))
	}

	actor := models.Actor{UserID: user.ID, Email: user.Email, IPAddress: ip, UserAgent: userAgent}
	s.events.Log(ctx, models.EventPasswordChanged, models.SeverityMedium, "password changed", actor, nil)
	s.notifier.SendEmail(user.Email,
		"Your password was changed",
		"<p>Your account password was just changed. All other devices have been signed out. If this wasn't you, contact support immediately.</p>",
	)

	return nil
}

// Me returns the current account as stored, not as claimed in the token.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUnauthorized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return &models.UserInfo{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     user.Role,
	}, nil
}

// SecurityStatus assembles the caller's current security view.
func (s *AuthService) SecurityStatus(ctx context.Context, claims *models.AccessClaims, ip, userAgent string) (*models.SecurityStatus, error) {
	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	active, err := s.sessions.ActiveCount(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
	}

	failures, err := s.lockouts.FailedCountInWindow(ctx, claims.Email, ip, s.lockWindow)
	if err != nil {
		s.logger.Warn("failed to count recent failures", zap.Error(err))
	}

	locked, until, err := s.lockouts.IsLocked(ctx, claims.Email, ip)
	if err != nil {
		s.logger.Warn("failed to check lockout for status", zap.Error(err))
	}

	assessment := s.fraud.Assess(ctx, claims.Email, ip, userAgent)

	return &models.SecurityStatus{
		Session:        session,
		ActiveSessions: active,
		RecentFailures: failures,
		Locked:         locked,
		LockedUntil:    until,
		RiskScore:      assessment.RiskScore,
		RiskReasons:    assessment.Reasons,
	}, nil
}

// ClearLockout is the administrative reset for a pair. The pair's auth
// rate window goes too, so the user is not cleared into an exhausted
// budget.
func (s *AuthService) ClearLockout(ctx context.Context, adminClaims *models.AccessClaims, email, ip string) error {
	if err := s.lockouts.Clear(ctx, email, ip); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear lockout")
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, ClassAuth, LoginKey(ip, email)); err != nil {
			s.logger.Warn("failed to reset auth rate window", zap.String("email", email), zap.Error(err))
		}
	}

	actor := models.Actor{UserID: adminClaims.UserID, Email: adminClaims.Email}
	meta := map[string]interface{}{"target_email": email, "target_ip": ip}
	s.events.Log(ctx, models.EventLockoutCleared, models.SeverityMedium, "lockout cleared by administrator", actor, meta)
	return nil
}

// ListEvents exposes the audit trail to administrators.
func (s *AuthService) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.SecurityEvent, error) {
	events, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	return events, nil
}

// AuthorizeRole re-checks the stored role instead of trusting the role
// claim inside a possibly stale token.
func (s *AuthService) AuthorizeRole(ctx context.Context, userID string, want models.UserRole) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrUnauthorized
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Role != want {
		return appErrors.Clone(appErrors.ErrForbidden, "insufficient role")
	}
	return nil
}
