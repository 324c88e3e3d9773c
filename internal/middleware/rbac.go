package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/wanderline/auth-api/internal/models"
	appErrors "github.com/wanderline/auth-api/pkg/errors"
	"github.com/wanderline/auth-api/pkg/response"
)

// roleAuthorizer re-checks a user's stored role; the token claim alone is
// never authoritative.
type roleAuthorizer interface {
	AuthorizeRole(ctx context.Context, userID string, want models.UserRole) error
}

// RBAC enforces role-based access control. The token's role claim is only
// a fast reject; the stored role is confirmed on every pass so a demotion
// takes effect immediately instead of at token expiry.
func RBAC(auth roleAuthorizer, allowed ...models.UserRole) gin.HandlerFunc {
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, r := range allowed {
		allowedRoles[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.AccessClaims)

		if _, ok := allowedRoles[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		if err := auth.AuthorizeRole(c.Request.Context(), claims.UserID, claims.Role); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
