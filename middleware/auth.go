package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"trane/services"
	"trane/types"
)

// userKey is the gin context key carrying the authenticated username
const userKey = "trane.user"

// RequireAuth validates the bearer access token on protected routes
func RequireAuth(auth services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.APIError{
				Error: "authentication required",
			})
			return
		}

		username, err := auth.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.APIError{
				Error: "invalid or expired token",
			})
			return
		}

		c.Set(userKey, username)
		c.Next()
	}
}

// CurrentUser returns the authenticated username for the request, if any
func CurrentUser(c *gin.Context) string {
	if username, ok := c.Get(userKey); ok {
		if s, ok := username.(string); ok {
			return s
		}
	}
	return ""
}
