package job

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for jobs
type Repository interface {
	// Save persists a new job
	Save(ctx context.Context, j *Job) error
	// Update updates an existing job
	Update(ctx context.Context, j *Job) error
	// FindByID retrieves a job by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)
	// FindUnfinished retrieves all jobs in queued or running status,
	// used for crash recovery on startup
	FindUnfinished(ctx context.Context) ([]*Job, error)
	// CountByStatus returns the job count per status
	CountByStatus(ctx context.Context) (map[Status]int64, error)
	// DeleteTerminalOlderThan deletes completed and failed jobs older than
	// the given time, returning the number of rows removed
	DeleteTerminalOlderThan(ctx context.Context, before time.Time) (int64, error)
}
