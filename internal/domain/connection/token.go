package connection

import (
	"time"

	"github.com/google/uuid"
)

// DefaultExpiryBuffer is subtracted from a token's expiry so callers never
// receive a token about to lapse mid-request
const DefaultExpiryBuffer = 5 * time.Minute

// TokenRecord holds the OAuth credential pair issued by the ERP for one tenant
type TokenRecord struct {
	TenantID     uuid.UUID
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// NewTokenRecord creates a token record from a refresh response
func NewTokenRecord(tenantID uuid.UUID, accessToken, refreshToken string, expiresIn time.Duration) *TokenRecord {
	now := time.Now()
	return &TokenRecord{
		TenantID:     tenantID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(expiresIn),
		UpdatedAt:    now,
	}
}

// IsExpired reports whether the token is past, or within buffer of, its expiry
func (t *TokenRecord) IsExpired(buffer time.Duration) bool {
	return !time.Now().Add(buffer).Before(t.ExpiresAt)
}

// Rotate replaces the credential pair after a successful refresh
func (t *TokenRecord) Rotate(accessToken, refreshToken string, expiresIn time.Duration) {
	now := time.Now()
	t.AccessToken = accessToken
	if refreshToken != "" {
		t.RefreshToken = refreshToken
	}
	t.ExpiresAt = now.Add(expiresIn)
	t.UpdatedAt = now
}
