package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wanderline/auth-api/internal/service"
	appErrors "github.com/wanderline/auth-api/pkg/errors"
	"github.com/wanderline/auth-api/pkg/response"
)

// ContextUserKey is the gin context key storing access token claims.
const ContextUserKey = "currentUser"

// ContextTokenKey is the gin context key storing the raw bearer token.
const ContextTokenKey = "currentToken"

// JWT protects routes by requiring a valid, unrevoked access token bound
// to a live session. Each pass extends the session's idle expiry; a failed
// extension write is logged and the request proceeds, since validity was
// already confirmed.
func JWT(tokens *service.TokenService, sessions *service.SessionService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := tokens.VerifyAccessToken(c.Request.Context(), parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		valid, err := sessions.IsValid(c.Request.Context(), claims.SessionID, claims.UserID)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "session check failed"))
			c.Abort()
			return
		}
		if !valid {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "session expired"))
			c.Abort()
			return
		}

		extended, err := sessions.Touch(c.Request.Context(), claims.SessionID)
		if err != nil {
			logger.Warn("session touch failed",
				zap.String("session_id", claims.SessionID),
				zap.Error(err))
		} else if !extended {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "session expired"))
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextTokenKey, parts[1])
		c.Next()
	}
}
