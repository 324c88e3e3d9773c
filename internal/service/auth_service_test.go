package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/wanderline/auth-api/internal/models"
	"github.com/wanderline/auth-api/pkg/config"
	appErrors "github.com/wanderline/auth-api/pkg/errors"
)

type mockUserStore struct {
	byEmail          map[string]*models.User
	byID             map[string]*models.User
	lastLoginUpdated bool
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{byEmail: make(map[string]*models.User), byID: make(map[string]*models.User)}
}

func (m *mockUserStore) add(user *models.User) {
	m.byEmail[user.Email] = user
	m.byID[user.ID] = user
}

func (m *mockUserStore) Create(ctx context.Context, user *models.User) error {
	m.add(user)
	return nil
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockUserStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockUserStore) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if user, ok := m.byID[id]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

type mockEventStore struct {
	events []*models.SecurityEvent
}

func (m *mockEventStore) Insert(ctx context.Context, e *models.SecurityEvent) error {
	m.events = append(m.events, e)
	return nil
}

func (m *mockEventStore) List(ctx context.Context, filter models.EventFilter) ([]models.SecurityEvent, error) {
	out := make([]models.SecurityEvent, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, *e)
	}
	return out, nil
}

func (m *mockEventStore) types() []string {
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

type mockNotifier struct {
	sent []string
}

func (m *mockNotifier) SendEmail(to, subject, bodyHTML string) {
	m.sent = append(m.sent, subject)
}

type authHarness struct {
	users       *mockUserStore
	attempts    *mockAttemptStore
	sessions    *mockSessionStore
	revocations *mockRevocationStore
	windows     *mockWindowCounter
	events      *mockEventStore
	notifier    *mockNotifier
	tokens      *TokenService
	svc         *AuthService
}

func newAuthHarness(flaggedIPs ...string) *authHarness {
	h := &authHarness{
		users:       newMockUserStore(),
		attempts:    newMockAttemptStore(),
		sessions:    newMockSessionStore(),
		revocations: newMockRevocationStore(),
		windows:     newMockWindowCounter(),
		events:      &mockEventStore{},
		notifier:    &mockNotifier{},
	}

	logger := zap.NewNop()
	h.tokens = newTokenService(h.revocations)

	limiter := NewRateLimitService(h.windows, logger, config.RateLimitConfig{
		Auth: config.RateLimitRule{Window: 15 * time.Minute, Max: 8},
	})

	validation := NewValidationService(config.PasswordConfig{
		LeakCheckTimeout: time.Second,
		LeakCacheTTL:     time.Minute,
	}, logger)

	lockouts := NewLockoutService(h.attempts, logger, config.LockoutConfig{
		Threshold: 5,
		Window:    15 * time.Minute,
		Cooldown:  30 * time.Minute,
	})

	fraud := NewFraudService(h.attempts, logger, config.FraudConfig{
		RiskyThreshold:    50,
		BlockThreshold:    80,
		VelocityWindow:    5 * time.Minute,
		VelocityThreshold: 10,
		FlaggedIPs:        flaggedIPs,
	})

	sessions := NewSessionService(h.sessions, logger, config.SessionConfig{
		IdleWindow:  30 * time.Minute,
		AbsoluteTTL: 24 * time.Hour,
	})

	events := NewEventService(h.events, logger)

	h.svc = NewAuthService(h.users, validation, h.tokens, limiter, lockouts, fraud, sessions, events, h.notifier, validator.New(), logger, 15*time.Minute)
	return h
}

func (h *authHarness) seedUser(email, password string) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := &models.User{
		ID:           "u-" + email,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Test Traveller",
		Role:         models.RoleUser,
		Active:       true,
	}
	h.users.add(user)
	return user
}

func TestSignupCreatesAccountAndSession(t *testing.T) {
	h := newAuthHarness()

	res, err := h.svc.Signup(context.Background(), models.SignupRequest{
		Email:     "new@example.com",
		Password:  "Str0ng!Pass",
		FullName:  "<b>New</b> Traveller",
		IP:        "10.0.0.1",
		UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "New Traveller", res.User.FullName) // sanitized

	claims, err := h.tokens.VerifyAccessToken(context.Background(), res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.Contains(t, h.events.types(), models.EventSignup)
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	h := newAuthHarness()

	_, err := h.svc.Signup(context.Background(), models.SignupRequest{
		Email:    "new@example.com",
		Password: "short",
		FullName: "Traveller",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.GreaterOrEqual(t, len(appErr.Details), 2) // every violated rule reported
	assert.Empty(t, h.users.byEmail)
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	h := newAuthHarness()
	h.seedUser("taken@example.com", "Str0ng!Pass")

	_, err := h.svc.Signup(context.Background(), models.SignupRequest{
		Email:    "taken@example.com",
		Password: "Str0ng!Pass",
		FullName: "Traveller",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestLoginSuccess(t *testing.T) {
	h := newAuthHarness()
	user := h.seedUser("user@example.com", "Str0ng!Pass")

	res, err := h.svc.Login(context.Background(), models.LoginRequest{
		Email:     "user@example.com",
		Password:  "Str0ng!Pass",
		IP:        "10.0.0.1",
		UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)
	assert.True(t, h.users.lastLoginUpdated)

	// successful attempt is on record and the audit trail has the event
	require.Len(t, h.attempts.attempts, 1)
	assert.True(t, h.attempts.attempts[0].Success)
	assert.Contains(t, h.events.types(), models.EventLoginSuccess)
}

func TestLoginWrongPasswordRecordsAttempt(t *testing.T) {
	h := newAuthHarness()
	h.seedUser("user@example.com", "Str0ng!Pass")

	_, err := h.svc.Login(context.Background(), models.LoginRequest{
		Email:     "user@example.com",
		Password:  "wrong-password",
		IP:        "10.0.0.1",
		UserAgent: "Mozilla/5.0",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	require.Len(t, h.attempts.attempts, 1)
	assert.False(t, h.attempts.attempts[0].Success)
	assert.Contains(t, h.events.types(), models.EventLoginFailure)
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	h := newAuthHarness()
	h.seedUser("user@example.com", "Str0ng!Pass")

	_, wrongPw := h.svc.Login(context.Background(), models.LoginRequest{
		Email: "user@example.com", Password: "nope", IP: "10.0.0.1", UserAgent: "Mozilla/5.0",
	})
	_, unknown := h.svc.Login(context.Background(), models.LoginRequest{
		Email: "ghost@example.com", Password: "nope", IP: "10.0.0.1", UserAgent: "Mozilla/5.0",
	})

	require.Error(t, wrongPw)
	require.Error(t, unknown)
	assert.Equal(t, appErrors.FromError(wrongPw).Code, appErrors.FromError(unknown).Code)
	assert.Equal(t, appErrors.FromError(wrongPw).Message, appErrors.FromError(unknown).Message)
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	h := newAuthHarness()
	h.seedUser("user@example.com", "Str0ng!Pass")
	ctx := context.Background()
	req := models.LoginRequest{Email: "user@example.com", Password: "wrong", IP: "10.0.0.1", UserAgent: "Mozilla/5.0"}

	for i := 0; i < 5; i++ {
		_, err := h.svc.Login(ctx, req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	}

	// even the right password is rejected while locked
	req.Password = "Str0ng!Pass"
	_, err := h.svc.Login(ctx, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAccountLocked.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 423, appErrors.FromError(err).Status)

	assert.Contains(t, h.events.types(), models.EventAccountLocked)
	assert.NotEmpty(t, h.notifier.sent)

	// the same email from a different ip is an independent pair
	req.IP = "10.0.0.2"
	_, err = h.svc.Login(ctx, req)
	require.NoError(t, err)
}

func TestLoginBlockedByRiskScore(t *testing.T) {
	h := newAuthHarness("203.0.113.9")
	h.seedUser("user@example.com", "Str0ng!Pass")
	ctx := context.Background()

	// seed a just-now attempt so the retry gap is below the human floor
	now := time.Now().UTC()
	h.attempts.attempts = append(h.attempts.attempts, &models.AuthAttempt{
		Email: "user@example.com", IPAddress: "203.0.113.9", Success: true, AttemptedAt: now,
	})

	// flagged ip (40) + missing agent (20) + rapid retry (25) = 85
	_, err := h.svc.Login(ctx, models.LoginRequest{
		Email:     "user@example.com",
		Password:  "Str0ng!Pass",
		IP:        "203.0.113.9",
		UserAgent: "",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrFraudBlocked.Code, appErr.Code)
	assert.Equal(t, 403, appErr.Status)
	assert.Contains(t, h.events.types(), models.EventFraudBlocked)

	// the blocked attempt itself is on record
	last := h.attempts.attempts[len(h.attempts.attempts)-1]
	assert.False(t, last.Success)
}

func TestRefreshRotatesTokenPair(t *testing.T) {
	h := newAuthHarness()
	h.seedUser("user@example.com", "Str0ng!Pass")
	ctx := context.Background()

	login, err := h.svc.Login(ctx, models.LoginRequest{
		Email: "user@example.com", Password: "Str0ng!Pass", IP: "10.0.0.1", UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)

	res, err := h.svc.Refresh(ctx, models.RefreshRequest{RefreshToken: login.RefreshToken, IP: "10.0.0.1", UserAgent: "Mozilla/5.0"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)

	// the rotated-out token is dead
	_, err = h.svc.Refresh(ctx, models.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenRevoked.Code, appErrors.FromError(err).Code)

	// the new one still works
	_, err = h.svc.Refresh(ctx, models.RefreshRequest{RefreshToken: res.RefreshToken})
	require.NoError(t, err)
}

func TestLogoutRevokesTokensAndEndsSession(t *testing.T) {
	h := newAuthHarness()
	h.seedUser("user@example.com", "Str0ng!Pass")
	ctx := context.Background()

	login, err := h.svc.Login(ctx, models.LoginRequest{
		Email: "user@example.com", Password: "Str0ng!Pass", IP: "10.0.0.1", UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)

	claims, err := h.tokens.VerifyAccessToken(ctx, login.AccessToken)
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(ctx, claims, login.AccessToken, login.RefreshToken, "10.0.0.1", "Mozilla/5.0"))

	_, err = h.tokens.VerifyAccessToken(ctx, login.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenRevoked.Code, appErrors.FromError(err).Code)

	_, err = h.svc.Refresh(ctx, models.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)

	assert.False(t, h.sessions.sessions[claims.SessionID].Active)

	// repeated logout is a no-op, not an error
	require.NoError(t, h.svc.Logout(ctx, claims, login.AccessToken, login.RefreshToken, "10.0.0.1", "Mozilla/5.0"))
}

func TestChangePasswordEndsAllSessions(t *testing.T) {
	h := newAuthHarness()
	user := h.seedUser("user@example.com", "Str0ng!Pass")
	ctx := context.Background()

	login, err := h.svc.Login(ctx, models.LoginRequest{
		Email: "user@example.com", Password: "Str0ng!Pass", IP: "10.0.0.1", UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)
	claims, err := h.tokens.VerifyAccessToken(ctx, login.AccessToken)
	require.NoError(t, err)

	err = h.svc.ChangePassword(ctx, claims, models.ChangePasswordRequest{
		OldPassword: "Str0ng!Pass",
		NewPassword: "N3w!Passw0rd",
	}, "10.0.0.1", "Mozilla/5.0")
	require.NoError(t, err)

	assert.False(t, h.sessions.sessions[claims.SessionID].Active)
	assert.NotEmpty(t, h.notifier.sent)
	assert.Contains(t, h.events.types(), models.EventPasswordChanged)

	// old password no longer matches
	require.Error(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Str0ng!Pass")))
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("N3w!Passw0rd")))
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	h := newAuthHarness()
	h.seedUser("user@example.com", "Str0ng!Pass")
	ctx := context.Background()

	login, err := h.svc.Login(ctx, models.LoginRequest{
		Email: "user@example.com", Password: "Str0ng!Pass", IP: "10.0.0.1", UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)
	claims, err := h.tokens.VerifyAccessToken(ctx, login.AccessToken)
	require.NoError(t, err)

	err = h.svc.ChangePassword(ctx, claims, models.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "N3w!Passw0rd",
	}, "10.0.0.1", "Mozilla/5.0")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSecurityStatus(t *testing.T) {
	h := newAuthHarness()
	h.seedUser("user@example.com", "Str0ng!Pass")
	ctx := context.Background()

	// one failure, then a success
	_, _ = h.svc.Login(ctx, models.LoginRequest{Email: "user@example.com", Password: "wrong", IP: "10.0.0.1", UserAgent: "Mozilla/5.0"})
	login, err := h.svc.Login(ctx, models.LoginRequest{Email: "user@example.com", Password: "Str0ng!Pass", IP: "10.0.0.1", UserAgent: "Mozilla/5.0"})
	require.NoError(t, err)
	claims, err := h.tokens.VerifyAccessToken(ctx, login.AccessToken)
	require.NoError(t, err)

	status, err := h.svc.SecurityStatus(ctx, claims, "10.0.0.1", "Mozilla/5.0")
	require.NoError(t, err)
	assert.Equal(t, 1, status.ActiveSessions)
	assert.Equal(t, 1, status.RecentFailures)
	assert.False(t, status.Locked)
	require.NotNil(t, status.Session)
	assert.Equal(t, claims.SessionID, status.Session.ID)
}

func TestClearLockoutLogsAdminAction(t *testing.T) {
	h := newAuthHarness()
	admin := &models.AccessClaims{UserID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin}

	h.attempts.lockouts[pairKey("user@example.com", "10.0.0.1")] = &models.AccountLockout{
		Email: "user@example.com", IPAddress: "10.0.0.1", LockedUntil: time.Now().Add(time.Hour),
	}
	windowKey := "auth:" + LoginKey("10.0.0.1", "user@example.com")
	h.windows.counts[windowKey] = 8

	require.NoError(t, h.svc.ClearLockout(context.Background(), admin, "user@example.com", "10.0.0.1"))
	assert.Empty(t, h.attempts.lockouts)
	assert.Contains(t, h.events.types(), models.EventLockoutCleared)

	// the pair's auth window is reopened alongside the lockout
	assert.NotContains(t, h.windows.counts, windowKey)
}

func TestLoginWindowKeyedPerEmailPair(t *testing.T) {
	h := newAuthHarness()
	ctx := context.Background()

	// more accounts than the per-pair budget, all from one address: each
	// pair gets its own window, so none of them is throttled
	emails := []string{
		"a@example.com", "b@example.com", "c@example.com",
		"d@example.com", "e@example.com", "f@example.com",
		"g@example.com", "h@example.com", "i@example.com",
	}
	for _, email := range emails {
		h.seedUser(email, "Str0ng!Pass")
		_, err := h.svc.Login(ctx, models.LoginRequest{
			Email: email, Password: "Str0ng!Pass", IP: "10.1.2.3", UserAgent: "Mozilla/5.0",
		})
		require.NoError(t, err)
	}

	assert.NotContains(t, h.windows.counts, "auth:10.1.2.3")
	for _, email := range emails {
		assert.Equal(t, int64(1), h.windows.counts["auth:"+LoginKey("10.1.2.3", email)])
	}
}

func TestLoginRateLimitedWhenPairWindowExhausted(t *testing.T) {
	h := newAuthHarness()
	h.seedUser("user@example.com", "Str0ng!Pass")
	ctx := context.Background()
	req := models.LoginRequest{Email: "user@example.com", Password: "Str0ng!Pass", IP: "10.0.0.1", UserAgent: "Mozilla/5.0"}

	for i := 0; i < 8; i++ {
		_, err := h.svc.Login(ctx, req)
		require.NoError(t, err)
	}

	_, err := h.svc.Login(ctx, req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRateLimited.Code, appErr.Code)
	assert.Equal(t, 429, appErr.Status)
	assert.Greater(t, appErr.RetryAfter, time.Duration(0))
	assert.Contains(t, h.events.types(), models.EventRateLimited)

	// a different account from the same address is not starved
	h.seedUser("other@example.com", "Str0ng!Pass")
	_, err = h.svc.Login(ctx, models.LoginRequest{
		Email: "other@example.com", Password: "Str0ng!Pass", IP: "10.0.0.1", UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)
}

func TestAuthorizeRoleUsesStoredRole(t *testing.T) {
	h := newAuthHarness()
	user := h.seedUser("admin@example.com", "Str0ng!Pass")
	user.Role = models.RoleAdmin

	require.NoError(t, h.svc.AuthorizeRole(context.Background(), user.ID, models.RoleAdmin))

	// demotion takes effect immediately, whatever the token still claims
	user.Role = models.RoleUser
	err := h.svc.AuthorizeRole(context.Background(), user.ID, models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = h.svc.AuthorizeRole(context.Background(), "missing-user", models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
