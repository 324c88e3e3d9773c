package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/wanderline/auth-api/internal/models"
	"github.com/wanderline/auth-api/internal/repository"
	appErrors "github.com/wanderline/auth-api/pkg/errors"
)

// Audience tags keep the two token kinds from being replayed as each other:
// verification pins both the secret and the audience.
const (
	audienceAccess  = "wanderline-api"
	audienceRefresh = "wanderline-refresh"
)

type revocationStore interface {
	Add(ctx context.Context, tokenHash string, entry models.RevocationEntry) error
	Get(ctx context.Context, tokenHash string) (*models.RevocationEntry, error)
}

// TokenService issues and verifies access/refresh tokens and manages the
// revocation list.
type TokenService struct {
	revocations   revocationStore
	logger        *zap.Logger
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// TokenConfig defines issuance settings for the token service.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// NewTokenService constructs a TokenService.
func NewTokenService(revocations revocationStore, logger *zap.Logger, cfg TokenConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		revocations:   revocations,
		logger:        logger,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		issuer:        cfg.Issuer,
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
	}
}

// IssueAccessToken mints a signed access token bound to a session.
func (s *TokenService) IssueAccessToken(user *models.User, sessionID string) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.accessExpiry)
	claims := &models.AccessClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{audienceAccess},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// IssueRefreshToken mints a signed refresh token carrying only the user and
// session identity.
func (s *TokenService) IssueRefreshToken(userID, sessionID string) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.refreshExpiry)
	claims := &models.RefreshClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audienceRefresh},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken checks signature, issuer/audience and expiry, then the
// revocation list. A malformed or badly signed token gets the same generic
// 401 as a missing one; only a well-formed revoked token gets the revoked
// code.
func (s *TokenService) VerifyAccessToken(ctx context.Context, tokenString string) (*models.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.accessSecret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(audienceAccess))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.AccessClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	revoked, err := s.IsRevoked(ctx, tokenString)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "revocation check failed")
	}
	if revoked {
		return nil, appErrors.ErrTokenRevoked
	}

	return claims, nil
}

// VerifyRefreshToken validates a refresh token against the refresh secret
// and audience, plus the revocation list.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, tokenString string) (*models.RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.RefreshClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.refreshSecret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(audienceRefresh))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid refresh token")
	}

	claims, ok := token.Claims.(*models.RefreshClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token claims")
	}

	revoked, err := s.IsRevoked(ctx, tokenString)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "revocation check failed")
	}
	if revoked {
		return nil, appErrors.ErrTokenRevoked
	}

	return claims, nil
}

// IsRevoked looks up the SHA-256 hash of the token against the revocation
// store. The raw token never reaches the store. The entry's reason lands
// in the debug log; clients only ever see the generic revoked code.
func (s *TokenService) IsRevoked(ctx context.Context, tokenString string) (bool, error) {
	entry, err := s.revocations.Get(ctx, repository.HashToken(tokenString))
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	s.logger.Debug("rejected revoked token",
		zap.String("reason", entry.Reason),
		zap.String("user_id", entry.UserID),
		zap.String("session_id", entry.SessionID))
	return true, nil
}

// Revoke blacklists a token until its natural expiry. Claims are decoded
// without expiry validation so a token at or past expiry can still be
// revoked. Idempotent: revoking twice rewrites the same entry.
func (s *TokenService) Revoke(ctx context.Context, tokenString, reason string) error {
	userID, sessionID, expiresAt := s.decodeForRevocation(tokenString)

	entry := models.RevocationEntry{
		UserID:    userID,
		SessionID: sessionID,
		Reason:    reason,
		ExpiresAt: expiresAt,
		RevokedAt: time.Now().UTC(),
	}
	if err := s.revocations.Add(ctx, repository.HashToken(tokenString), entry); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// decodeForRevocation extracts identity and expiry from either token kind,
// skipping claim validation. Unparseable tokens still get an entry with a
// short default expiry so the hash is blocked either way.
func (s *TokenService) decodeForRevocation(tokenString string) (userID, sessionID string, expiresAt time.Time) {
	expiresAt = time.Now().UTC().Add(s.accessExpiry)

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	var access models.AccessClaims
	if _, err := parser.ParseWithClaims(tokenString, &access, func(t *jwt.Token) (interface{}, error) {
		return s.accessSecret, nil
	}); err == nil {
		if access.ExpiresAt != nil {
			expiresAt = access.ExpiresAt.Time
		}
		return access.UserID, access.SessionID, expiresAt
	}

	var refresh models.RefreshClaims
	if _, err := parser.ParseWithClaims(tokenString, &refresh, func(t *jwt.Token) (interface{}, error) {
		return s.refreshSecret, nil
	}); err == nil {
		if refresh.ExpiresAt != nil {
			expiresAt = refresh.ExpiresAt.Time
		}
		return refresh.UserID, refresh.SessionID, expiresAt
	}

	s.logger.Debug("revoking unparseable token", zap.String("reason", "claims not decodable"))
	return "", "", expiresAt
}
