package connection

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTokenRecord_IsExpired(t *testing.T) {
	tok := NewTokenRecord(uuid.New(), "access", "refresh", time.Hour)

	assert.False(t, tok.IsExpired(0))
	assert.False(t, tok.IsExpired(DefaultExpiryBuffer))
	// a token with 1h of life is expired when viewed through a 2h buffer
	assert.True(t, tok.IsExpired(2*time.Hour))
}

func TestTokenRecord_IsExpired_PastExpiry(t *testing.T) {
	tok := NewTokenRecord(uuid.New(), "access", "refresh", -time.Minute)
	assert.True(t, tok.IsExpired(0))
}

func TestTokenRecord_Rotate(t *testing.T) {
	tok := NewTokenRecord(uuid.New(), "old-access", "old-refresh", time.Minute)

	tok.Rotate("new-access", "new-refresh", time.Hour)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, "new-refresh", tok.RefreshToken)
	assert.False(t, tok.IsExpired(DefaultExpiryBuffer))
}

func TestTokenRecord_Rotate_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	tok := NewTokenRecord(uuid.New(), "old-access", "old-refresh", time.Minute)

	// some providers omit the refresh token on rotation
	tok.Rotate("new-access", "", time.Hour)
	assert.Equal(t, "old-refresh", tok.RefreshToken)
}

func TestConflictStrategy_Valid(t *testing.T) {
	assert.True(t, ConflictBlingWins.Valid())
	assert.True(t, ConflictLocalWins.Valid())
	assert.True(t, ConflictManual.Valid())
	assert.False(t, ConflictStrategy("remote_wins").Valid())
}

func TestNewTenantConnection_Defaults(t *testing.T) {
	c := NewTenantConnection(uuid.New(), "store", "client-id", "client-secret")

	assert.Equal(t, StatusActive, c.Status)
	assert.True(t, c.IsActive())
	assert.Equal(t, ConflictBlingWins, c.ConflictStrategy)
	assert.Equal(t, "0.5", c.PriceTolerance.String())
	assert.True(t, c.MarkupPercent.IsZero())

	c.MarkError()
	assert.False(t, c.IsActive())
}
