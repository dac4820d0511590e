package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/examsmart/examsmart-backend/internal/response"
	"github.com/examsmart/examsmart-backend/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"

	// AuthCookie is the cookie that carries the JWT for browser clients.
	AuthCookie = "jwt"
)

// RequireAuth validates the JWT and stores its claims in the context.
// Revoked tokens are rejected.
func RequireAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ExtractToken(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.Authenticate(c.Request.Context(), tokenStr)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrTokenRevoked):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRevoked)
			return
		case errors.Is(err, service.ErrTokenInvalid):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		default:
			// The denylist could not be checked.
			_ = c.Error(err)
			response.AbortFail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// ExtractToken reads the token from the Authorization header, then the auth
// cookie, then the ?token= query param used by WebSocket and EventSource clients.
func ExtractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := c.Cookie(AuthCookie); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("token")
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}
