package job

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blingsync/backend/internal/domain/shared"
)

func newTestJob(maxRetries int) *Job {
	return New(TypeProductSync, uuid.New(), nil, shared.PriorityNormal, time.Minute, maxRetries)
}

func TestJob_Lifecycle(t *testing.T) {
	j := newTestJob(3)
	assert.Equal(t, StatusQueued, j.Status)
	assert.True(t, j.Ready(time.Now()))

	require.NoError(t, j.Start())
	assert.Equal(t, StatusRunning, j.Status)
	require.NotNil(t, j.StartedAt)

	require.NoError(t, j.Complete([]byte(`{"synced":10}`)))
	assert.Equal(t, StatusCompleted, j.Status)
	assert.Equal(t, 100, j.Progress)
	assert.True(t, j.Status.IsTerminal())
}

func TestJob_Start_InvalidState(t *testing.T) {
	j := newTestJob(3)
	require.NoError(t, j.Start())
	assert.Error(t, j.Start())

	require.NoError(t, j.Complete(nil))
	assert.Error(t, j.Start())
}

func TestJob_Fail_SchedulesRetryWithBackoff(t *testing.T) {
	j := newTestJob(3)
	require.NoError(t, j.Start())

	before := time.Now()
	j.Fail("remote unavailable", time.Second, 2.0)

	assert.Equal(t, StatusQueued, j.Status)
	assert.Equal(t, 1, j.RetryCount)
	require.NotNil(t, j.NextRunAt)
	// first retry delayed by baseDelay × factor^0 = 1s
	assert.WithinDuration(t, before.Add(time.Second), *j.NextRunAt, 200*time.Millisecond)
	assert.False(t, j.Ready(time.Now()))
	assert.True(t, j.Ready(time.Now().Add(2*time.Second)))
}

func TestJob_Fail_BackoffGrowsExponentially(t *testing.T) {
	j := newTestJob(5)

	var delays []time.Duration
	for i := 0; i < 3; i++ {
		require.NoError(t, j.Start())
		before := time.Now()
		j.Fail("boom", time.Second, 2.0)
		require.NotNil(t, j.NextRunAt)
		delays = append(delays, j.NextRunAt.Sub(before))
		j.NextRunAt = nil
	}

	// 1s, 2s, 4s
	assert.InDelta(t, float64(time.Second), float64(delays[0]), float64(200*time.Millisecond))
	assert.InDelta(t, float64(2*time.Second), float64(delays[1]), float64(200*time.Millisecond))
	assert.InDelta(t, float64(4*time.Second), float64(delays[2]), float64(200*time.Millisecond))
}

func TestJob_Fail_RetryCeiling(t *testing.T) {
	j := newTestJob(2)

	for i := 0; i < 2; i++ {
		j.Status = StatusQueued
		j.NextRunAt = nil
		require.NoError(t, j.Start())
		j.Fail("boom", time.Millisecond, 2.0)
		assert.Equal(t, StatusQueued, j.Status)
	}

	j.NextRunAt = nil
	require.NoError(t, j.Start())
	j.Fail("boom", time.Millisecond, 2.0)

	assert.Equal(t, StatusFailed, j.Status)
	assert.True(t, j.Status.IsTerminal())
	// retryCount never exceeds the configured maximum
	assert.LessOrEqual(t, j.RetryCount, j.MaxRetries)
	require.NotNil(t, j.CompletedAt)
}

func TestJob_SetProgress(t *testing.T) {
	j := newTestJob(3)

	j.SetProgress(40)
	assert.Equal(t, 40, j.Progress)

	// progress never moves backwards
	j.SetProgress(20)
	assert.Equal(t, 40, j.Progress)

	j.SetProgress(150)
	assert.Equal(t, 100, j.Progress)

	j.Progress = 0
	j.SetProgress(-5)
	assert.Equal(t, 0, j.Progress)
}

func TestJob_ResetForRecovery(t *testing.T) {
	j := newTestJob(3)
	require.NoError(t, j.Start())
	assert.Equal(t, StatusRunning, j.Status)

	require.NoError(t, j.ResetForRecovery())
	assert.Equal(t, StatusQueued, j.Status)
	assert.Nil(t, j.StartedAt)
	assert.True(t, j.Ready(time.Now()))
}

func TestJob_ResetForRecovery_TerminalJob(t *testing.T) {
	j := newTestJob(3)
	require.NoError(t, j.Start())
	require.NoError(t, j.Complete(nil))

	assert.Error(t, j.ResetForRecovery())
	assert.Equal(t, StatusCompleted, j.Status)
}

func TestJob_ForceFail(t *testing.T) {
	j := newTestJob(3)
	require.NoError(t, j.Start())

	j.ForceFail("shutdown grace period exceeded")
	assert.Equal(t, StatusFailed, j.Status)
	assert.Equal(t, "shutdown grace period exceeded", j.LastError)
	require.NotNil(t, j.CompletedAt)
}

func TestJob_DefaultsInvalidPriority(t *testing.T) {
	j := New(TypeCleanup, uuid.New(), nil, shared.Priority("bogus"), time.Minute, 1)
	assert.Equal(t, shared.PriorityNormal, j.Priority)
}
