package webhook

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_MarkProcessed(t *testing.T) {
	r := NewRecord(uuid.New(), "delivery-1", "product.updated", []byte(`{}`))
	assert.Equal(t, StatusReceived, r.Status)

	r.MarkProcessed()
	assert.Equal(t, StatusProcessed, r.Status)
	require.NotNil(t, r.ProcessedAt)
}

func TestRecord_MarkFailed_IsRetryable(t *testing.T) {
	r := NewRecord(uuid.New(), "delivery-1", "product.updated", []byte(`{}`))

	r.MarkFailed("bus queue full")
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, 1, r.RetryCount)
	assert.True(t, r.CanRetry(DefaultMaxRetries))

	r.MarkFailed("bus queue full")
	r.MarkFailed("bus queue full")
	assert.False(t, r.CanRetry(DefaultMaxRetries))
}

func TestRecord_MarkRejected_NeverRetried(t *testing.T) {
	r := NewRecord(uuid.New(), "delivery-1", "product.updated", []byte(`{}`))

	r.MarkRejected("signature mismatch")
	assert.Equal(t, StatusRejected, r.Status)
	assert.False(t, r.Retryable)
	assert.False(t, r.CanRetry(DefaultMaxRetries))
}

func TestRecord_MarkDuplicate(t *testing.T) {
	r := NewRecord(uuid.New(), "delivery-1", "product.updated", []byte(`{}`))

	r.MarkDuplicate()
	assert.Equal(t, StatusDuplicate, r.Status)
	assert.False(t, r.CanRetry(DefaultMaxRetries))
}
