package middleware

import (
	"net/http"
	"strings"

	"pulseboard/internal/services"

	"github.com/gin-gonic/gin"
)

// SubscriberKey is the context key holding the authenticated subscriber
const SubscriberKey = "subscriber"

// TokenValidator checks subscriber tokens
type TokenValidator interface {
	ValidateToken(token string) (*services.CustomClaims, error)
}

// RequestToken returns the token from the Authorization header (Bearer) or,
// failing that, the token query parameter.
func RequestToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return c.Query("token")
}

// TokenAuthMiddleware rejects requests without a valid subscriber token
func TokenAuthMiddleware(auth TokenValidator, security *SecurityLogger) gin.HandlerFunc {
	validator := NewInputValidator()

	return func(c *gin.Context) {
		token := RequestToken(c)
		if token == "" {
			security.LogFailedAuth(c.ClientIP(), "missing token on "+c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required in Authorization header or query parameter"})
			return
		}
		if !validator.ValidateToken(token) {
			security.LogFailedAuth(c.ClientIP(), "malformed token on "+c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			security.LogFailedAuth(c.ClientIP(), err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(SubscriberKey, claims.Subscriber)
		c.Next()
	}
}
