package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/NickKasten/posture/internal/jwt"
)

const userIDKey = "userID"

// Auth validates the Authorization header and attaches the user id.
type Auth struct {
	Sessions *jwt.Generator
}

// NewAuth wires the auth middleware.
func NewAuth(sessions *jwt.Generator) *Auth {
	return &Auth{Sessions: sessions}
}

// ValidateJWT ensures the request has a valid bearer session token.
func (m *Auth) ValidateJWT(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}
	userID, err := m.Sessions.Validate(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid session token."})
		return
	}
	c.Set(userIDKey, userID)
	c.Next()
}

// GetUserID exposes the authenticated user id to handlers.
func GetUserID(c *gin.Context) (string, bool) {
	value, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	userID, ok := value.(string)
	return userID, ok && userID != ""
}
