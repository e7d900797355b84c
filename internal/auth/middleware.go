package auth

import (
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyToken is the key for storing the resolved token in gin context
	ContextKeyToken = "sessionToken"
	// ContextKeyUserID is the key for storing the authenticated user id
	ContextKeyUserID = "authUserID"
)

// Middleware extracts and validates the session token from the request.
// Sets sessionToken and authUserID in context if valid.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")

		if raw != "" {
			tok, err := m.ValidateToken(c.Request.Context(), raw)
			if err == nil {
				c.Set(ContextKeyToken, tok)
				c.Set(ContextKeyUserID, tok.UID)
			}
		}

		c.Next()
	}
}

// RequireUser rejects requests without a valid session token
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyUserID); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "Session token required. Include 'Authorization: Bearer ut_...' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin gates admin endpoints on the X-Admin-Secret header.
// With no ADMIN_SECRET configured (development), any authenticated caller
// passes; with one configured, the header must match exactly.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := os.Getenv("ADMIN_SECRET")

		if secret == "" {
			if _, exists := c.Get(ContextKeyUserID); !exists && c.GetHeader("X-Admin-Secret") == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "unauthenticated",
					"message": "Authentication required for admin endpoints.",
				})
				return
			}
			c.Next()
			return
		}

		provided := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "permission-denied",
				"message": "Invalid admin secret.",
			})
			return
		}

		c.Next()
	}
}

// AuthenticatedUser returns the authenticated user id from context
func AuthenticatedUser(c *gin.Context) string {
	uid, exists := c.Get(ContextKeyUserID)
	if !exists {
		return ""
	}
	return uid.(string)
}

// IsAuthenticated checks if the request carries a valid session
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ContextKeyUserID)
	return exists
}
