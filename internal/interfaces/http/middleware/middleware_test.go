package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blingsync/backend/internal/infrastructure/auth"
	"github.com/blingsync/backend/internal/infrastructure/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedEngine(jwtService *auth.JWTService) *gin.Engine {
	engine := gin.New()
	engine.Use(JWTAuth(jwtService))
	engine.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant_id": GetJWTTenantID(c)})
	})
	return engine
}

func TestJWTAuth_ValidToken(t *testing.T) {
	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:     "test-secret-at-least-32-characters!",
		Issuer:     "blingsync-test",
		Expiration: time.Hour,
	})
	tenantID := uuid.New()
	token, _, err := jwtService.GenerateToken(tenantID, "ops@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	w := httptest.NewRecorder()
	protectedEngine(jwtService).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), tenantID.String())
}

func TestJWTAuth_MissingToken(t *testing.T) {
	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret: "test-secret-at-least-32-characters!", Issuer: "t", Expiration: time.Hour,
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	protectedEngine(jwtService).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_MalformedHeader(t *testing.T) {
	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret: "test-secret-at-least-32-characters!", Issuer: "t", Expiration: time.Hour,
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(AuthHeaderKey, "Token abc")
	w := httptest.NewRecorder()
	protectedEngine(jwtService).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimit_BudgetExhaustion(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)

	engine := gin.New()
	engine.Use(RateLimit(limiter))
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimiter_WindowReset(t *testing.T) {
	limiter := NewRateLimiter(1, 20*time.Millisecond)

	require.True(t, limiter.Allow("client"))
	require.False(t, limiter.Allow("client"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, limiter.Allow("client"))
}

func TestRequestID_Generated(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID_Propagated(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestRecovery_ConvertsPanic(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery(zap.NewNop()))
	engine.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
