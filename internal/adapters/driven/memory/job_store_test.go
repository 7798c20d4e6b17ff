package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

func TestJobStore_CreateAndGet(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	job := domain.NewJob(domain.JobKindIndex, domain.JobInput{PrefixList: []string{"a/"}})
	require.NoError(t, store.Create(ctx, job))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.JobStatusPending, got.Status)

	err = store.Create(ctx, job)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobStore_UpdateVersionConflict(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	job := domain.NewJob(domain.JobKindIndex, domain.JobInput{PrefixList: []string{"a/"}})
	require.NoError(t, store.Create(ctx, job))

	// Two readers pick up the same version
	first, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	second, err := store.Get(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, first.TransitionTo(domain.JobStatusRunning))
	require.NoError(t, store.Update(ctx, first))

	// The stale writer loses
	require.NoError(t, second.TransitionTo(domain.JobStatusRunning))
	err = store.Update(ctx, second)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestJobStore_UpdateRejectsBackwardTransition(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	job := domain.NewJob(domain.JobKindIndex, domain.JobInput{PrefixList: []string{"a/"}})
	require.NoError(t, store.Create(ctx, job))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, got.TransitionTo(domain.JobStatusRunning))
	require.NoError(t, got.TransitionTo(domain.JobStatusCompleted))
	require.NoError(t, store.Update(ctx, got))

	// Force a backwards status on a fresh copy
	stale, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	stale.Status = domain.JobStatusRunning
	err = store.Update(ctx, stale)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestJobStore_List(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		job := domain.NewJob(domain.JobKindIndex, domain.JobInput{PrefixList: []string{"a/"}})
		require.NoError(t, store.Create(ctx, job))
	}

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestJobStore_GetReturnsCopy(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	job := domain.NewJob(domain.JobKindIndex, domain.JobInput{PrefixList: []string{"a/"}})
	require.NoError(t, store.Create(ctx, job))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	got.Status = domain.JobStatusFailed

	fresh, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, fresh.Status)
}
