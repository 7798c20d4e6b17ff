package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue(newTestClient(t), "test-worker")
	require.NoError(t, err)
	return q
}

func TestQueue_RoundTrip(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := domain.NewTask("job-1")
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, domain.TaskStatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)

	require.NoError(t, q.Ack(ctx, got.ID))

	stored, err := q.getTask(ctx, got.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q := newTestQueue(t)

	got, err := q.DequeueWithTimeout(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueue_ScheduledTaskPromoted(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := domain.NewTask("job-1")
	task.ScheduledFor = time.Now().Add(100 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, task))

	// Not due yet
	got, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	time.Sleep(150 * time.Millisecond)

	got, err = q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
}

func TestQueue_NackReschedulesWhileBudgetLeft(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := domain.NewTask("job-1")
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, q.Nack(ctx, got.ID, "upstream unavailable"))

	stored, err := q.getTask(ctx, got.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.TaskStatusPending, stored.Status)
	assert.Equal(t, "upstream unavailable", stored.Error)
	assert.True(t, stored.ScheduledFor.After(time.Now()))

	// Parked in the scheduled set, not the live stream
	err = q.client.ZScore(ctx, scheduledTasks, stored.ID).Err()
	assert.NoError(t, err)
}

func TestQueue_NackFailsAfterBudget(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := domain.NewTask("job-1")
	task.MaxAttempts = 1
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, q.Nack(ctx, got.ID, "still broken"))

	stored, err := q.getTask(ctx, got.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, "still broken", stored.Error)
}
