package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(InternalAuthMiddleware())
	r.GET("/internal/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func doAuthRequest(r *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/internal/health", nil)
	if key != "" {
		req.Header.Set("X-Internal-API-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInternalAuthMiddleware(t *testing.T) {
	t.Setenv(authKeyEnv, "sync-secret")
	r := newAuthRouter()

	assert.Equal(t, http.StatusOK, doAuthRequest(r, "sync-secret").Code)
	assert.Equal(t, http.StatusUnauthorized, doAuthRequest(r, "wrong-key").Code)
	assert.Equal(t, http.StatusUnauthorized, doAuthRequest(r, "").Code)
}

func TestInternalAuthMiddlewareUnconfigured(t *testing.T) {
	t.Setenv(authKeyEnv, "")
	r := newAuthRouter()

	assert.Equal(t, http.StatusInternalServerError, doAuthRequest(r, "sync-secret").Code)
}
