package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for webhook audit records
type Repository interface {
	// Save persists a new record. Implementations return
	// shared.ErrAlreadyExists when the delivery ID is already stored.
	Save(ctx context.Context, r *Record) error
	Update(ctx context.Context, r *Record) error
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)
	FindByDeliveryID(ctx context.Context, tenantID uuid.UUID, deliveryID string) (*Record, error)
	// FindRetryable returns transiently failed records eligible for the
	// reprocessing sweep, oldest first
	FindRetryable(ctx context.Context, maxRetries, limit int) ([]*Record, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
