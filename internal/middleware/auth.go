package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/identity"
)

const userKey = "current_user"

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*identity.User, error)
}

// BearerToken returns the token of the Authorization header, if any.
func BearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Authenticate attaches the user of a valid bearer token to the request.
// Requests without a token pass through anonymously; invalid tokens are
// rejected with 401.
func Authenticate(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		u, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if apperr.Is(err, apperr.KindUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthorized"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication failed", "code": "internal"})
			return
		}
		c.Set(userKey, u)
		c.Request = c.Request.WithContext(identity.WithUser(c.Request.Context(), u))
		c.Next()
	}
}

// RequireUser rejects anonymous requests.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "login required",
				"code":  "unauthorized",
			})
			return
		}
		c.Next()
	}
}

// RequireRole rejects users whose role is not listed.
func RequireRole(roles ...identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		for _, r := range roles {
			if u != nil && u.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "insufficient role",
			"code":  "forbidden",
		})
	}
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *gin.Context) *identity.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*identity.User); ok {
			return u
		}
	}
	return nil
}
