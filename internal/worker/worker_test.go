package worker

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ingest-core/internal/adapters/driven/memory"
	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/ingest-core/internal/core/services"
)

func TestWorker_ProcessesEnqueuedJob(t *testing.T) {
	jobs := memory.NewJobStore()
	queue := memory.NewQueue(16)
	blobs := mocks.NewMockBlobStore()
	blobs.AddBlob("source", "docs/a.txt", []byte("x"))

	orch := services.NewOrchestrator(services.OrchestratorConfig{
		Jobs:           jobs,
		Queue:          queue,
		Blobs:          blobs,
		Extractor:      mocks.NewMockTextExtractor(),
		Embedder:       mocks.NewMockEmbeddingService(),
		Search:         mocks.NewMockSearchEngine(),
		DefaultIndex:   "test-index",
		RetryAttempts:  1,
		RetryBaseDelay: time.Millisecond,
	})

	w := New(Config{
		TaskQueue:      queue,
		Orchestrator:   orch,
		Concurrency:    2,
		DequeueTimeout: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	jobID, err := orch.Start(ctx, domain.JobKindIndex, domain.JobInput{PrefixList: []string{"docs/"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := jobs.Get(ctx, jobID)
		return err == nil && job.Status == domain.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	job, err := jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Output.DocumentsSucceeded)
}

func TestWorker_TaskLogFieldsDoNotAccumulate(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	jobs := memory.NewJobStore()
	queue := memory.NewQueue(16)
	blobs := mocks.NewMockBlobStore()
	blobs.AddBlob("source", "docs/a.txt", []byte("x"))

	orch := services.NewOrchestrator(services.OrchestratorConfig{
		Jobs:           jobs,
		Queue:          queue,
		Blobs:          blobs,
		Extractor:      mocks.NewMockTextExtractor(),
		Embedder:       mocks.NewMockEmbeddingService(),
		Search:         mocks.NewMockSearchEngine(),
		DefaultIndex:   "test-index",
		RetryAttempts:  1,
		RetryBaseDelay: time.Millisecond,
	})

	w := New(Config{
		TaskQueue:      queue,
		Orchestrator:   orch,
		Logger:         logger,
		Concurrency:    1,
		DequeueTimeout: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	var ids []string
	for i := 0; i < 2; i++ {
		id, err := orch.Start(ctx, domain.JobKindIndex, domain.JobInput{PrefixList: []string{"docs/"}})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			job, err := jobs.Get(ctx, id)
			if err != nil || !job.Status.Terminal() {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	// Stop waits for the goroutine, so the buffer is quiescent below
	w.Stop()

	// Each line carries the fields of its own task only
	tagged := 0
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if n := strings.Count(line, `"task_id"`); n > 0 {
			tagged++
			assert.Equal(t, 1, n, line)
		}
	}
	assert.GreaterOrEqual(t, tagged, 2)
}

func TestWorker_StartIsIdempotent(t *testing.T) {
	queue := memory.NewQueue(16)
	orch := services.NewOrchestrator(services.OrchestratorConfig{
		Jobs:  memory.NewJobStore(),
		Queue: queue,
	})

	w := New(Config{TaskQueue: queue, Orchestrator: orch, DequeueTimeout: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx))
	w.Stop()
	w.Stop()
}
