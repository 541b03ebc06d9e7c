// Package middlewares carries the gin middleware shared by the REST
// routes.
package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xtendplex/chat-server/internal/infrastructure/identity"
)

const userIDKey = "auth_user_id"

// AuthMiddleware enforces bearer token auth on the REST surface and
// stashes the caller's user id on the request context.
func AuthMiddleware(validator identity.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		ident, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(userIDKey, ident.UserID)
		c.Next()
	}
}

// UserID returns the authenticated caller's id, empty when the request
// skipped the auth middleware.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
