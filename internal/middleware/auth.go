package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// authKeyEnv names the shared secret for service-to-service calls. It sits
// outside the viper config on purpose: secrets stay in the environment.
const authKeyEnv = "CALENDAR_SERVICE_INTERNAL_API_KEY"

// InternalAuthMiddleware guards the /internal route group. Callers present
// the shared key in the X-Internal-API-Key header; comparison is constant
// time.
func InternalAuthMiddleware() gin.HandlerFunc {
	expected := []byte(os.Getenv(authKeyEnv))
	if len(expected) == 0 {
		// Fail every request rather than run the internal surface open.
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "server misconfigured: " + authKeyEnv + " not set",
			})
		}
	}

	return func(c *gin.Context) {
		key := c.GetHeader("X-Internal-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}
		c.Next()
	}
}
