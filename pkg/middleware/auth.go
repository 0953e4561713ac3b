package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SharedSecretAuth guards control-surface routes with a bearer shared secret.
// The secret is resolved per request so rotation takes effect immediately;
// any mismatch or lookup failure yields 401.
func SharedSecretAuth(lookup func() (string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret, err := lookup()
		if err != nil || secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "unauthorized",
				"error_code": "UNAUTHORIZED",
			})
			return
		}

		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			// Fall back to the raw header for shared-secret callers that
			// do not speak the Bearer scheme.
			token = header
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "unauthorized",
				"error_code": "UNAUTHORIZED",
			})
			return
		}

		c.Next()
	}
}
