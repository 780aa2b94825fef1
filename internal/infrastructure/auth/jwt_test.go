package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blingsync/backend/internal/infrastructure/config"
)

func testService(expiration time.Duration) *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:     "test-secret-at-least-32-characters!",
		Issuer:     "blingsync-test",
		Expiration: expiration,
	})
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := testService(time.Hour)
	tenantID := uuid.New()

	token, expiresAt, err := svc.GenerateToken(tenantID, "ops@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, tenantID.String(), claims.TenantID)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, "blingsync-test", claims.Issuer)
}

func TestJWTService_ExpiredToken(t *testing.T) {
	svc := testService(-time.Minute)

	token, _, err := svc.GenerateToken(uuid.New(), "ops@example.com")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_WrongSecretRejected(t *testing.T) {
	token, _, err := testService(time.Hour).GenerateToken(uuid.New(), "ops@example.com")
	require.NoError(t, err)

	other := NewJWTService(config.JWTConfig{
		Secret:     "a-different-secret-32-characters!!!",
		Issuer:     "blingsync-test",
		Expiration: time.Hour,
	})
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_GarbageRejected(t *testing.T) {
	_, err := testService(time.Hour).ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
