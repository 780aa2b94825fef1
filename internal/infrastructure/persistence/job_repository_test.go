package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blingsync/backend/internal/domain/job"
	"github.com/blingsync/backend/internal/domain/shared"
)

func TestGormJobRepository_SaveAndFind(t *testing.T) {
	repo := NewGormJobRepository(setupTestDB(t))
	ctx := context.Background()

	j := job.New(job.TypeProductSync, uuid.New(), []byte(`{"page":1}`), shared.PriorityHigh, 10*time.Minute, 3)
	require.NoError(t, repo.Save(ctx, j))

	found, err := repo.FindByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, found.ID)
	assert.Equal(t, job.TypeProductSync, found.Type)
	assert.Equal(t, shared.PriorityHigh, found.Priority)
	assert.Equal(t, 10*time.Minute, found.Timeout)
	assert.JSONEq(t, `{"page":1}`, string(found.Payload))
}

func TestGormJobRepository_FindByID_NotFound(t *testing.T) {
	repo := NewGormJobRepository(setupTestDB(t))

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormJobRepository_FindUnfinished(t *testing.T) {
	repo := NewGormJobRepository(setupTestDB(t))
	ctx := context.Background()

	queued := job.New(job.TypeFullSync, uuid.New(), nil, shared.PriorityNormal, time.Minute, 3)
	require.NoError(t, repo.Save(ctx, queued))

	running := job.New(job.TypeOrderSync, uuid.New(), nil, shared.PriorityNormal, time.Minute, 3)
	require.NoError(t, running.Start())
	require.NoError(t, repo.Save(ctx, running))

	done := job.New(job.TypeCleanup, uuid.New(), nil, shared.PriorityNormal, time.Minute, 3)
	require.NoError(t, done.Start())
	require.NoError(t, done.Complete(nil))
	require.NoError(t, repo.Save(ctx, done))

	unfinished, err := repo.FindUnfinished(ctx)
	require.NoError(t, err)
	require.Len(t, unfinished, 2)
}

func TestGormJobRepository_CountByStatus(t *testing.T) {
	repo := NewGormJobRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Save(ctx, job.New(job.TypeProductSync, uuid.New(), nil, shared.PriorityNormal, time.Minute, 3)))
	}
	failed := job.New(job.TypeProductSync, uuid.New(), nil, shared.PriorityNormal, time.Minute, 0)
	require.NoError(t, failed.Start())
	failed.Fail("boom", time.Second, 2.0)
	require.NoError(t, repo.Save(ctx, failed))

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[job.StatusQueued])
	assert.Equal(t, int64(1), counts[job.StatusFailed])
}

func TestGormJobRepository_DeleteTerminalOlderThan(t *testing.T) {
	repo := NewGormJobRepository(setupTestDB(t))
	ctx := context.Background()

	old := job.New(job.TypeCleanup, uuid.New(), nil, shared.PriorityNormal, time.Minute, 3)
	require.NoError(t, old.Start())
	require.NoError(t, old.Complete(nil))
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Save(ctx, old))

	fresh := job.New(job.TypeCleanup, uuid.New(), nil, shared.PriorityNormal, time.Minute, 3)
	require.NoError(t, repo.Save(ctx, fresh))

	deleted, err := repo.DeleteTerminalOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// queued jobs are never cleaned up regardless of age
	_, err = repo.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
}
