package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/atelierhq/atelier/internal/auth"
	"github.com/atelierhq/atelier/pkg/errors"
	"github.com/atelierhq/atelier/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
	CtxIsAdminKey   = "isAdmin"
)

// Auth enforces JWT authentication using the supplied JWT service. Tokens are
// read from the Authorization header, falling back to the session cookie so
// browser clients need no token plumbing.
func Auth(jwt *iauth.JWTService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" && cookieName != "" {
			if cookie, err := c.Cookie(cookieName); err == nil {
				token = strings.TrimSpace(cookie)
			}
		}

		if token == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		// Propagate identity into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxIsAdminKey, claims.IsAdmin)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}

		c.Next()
	}
}

// OptionalAuth populates identity when a valid token is present but lets
// anonymous requests through. Used by the public talk intake route.
func OptionalAuth(jwt *iauth.JWTService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" && cookieName != "" {
			if cookie, err := c.Cookie(cookieName); err == nil {
				token = strings.TrimSpace(cookie)
			}
		}

		if token != "" {
			if claims, err := jwt.ValidateAccessToken(token); err == nil {
				c.Set(CtxClaimsKey, claims)
				c.Set(CtxUserIDKey, claims.UserID)
				c.Set(CtxIsAdminKey, claims.IsAdmin)
				if claims.SessionID != "" {
					c.Set(CtxSessionIDKey, claims.SessionID)
				}
			}
		}

		c.Next()
	}
}

// RequireAdmin rejects requests whose token lacks the admin claim. Must run
// after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(CtxIsAdminKey) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}
