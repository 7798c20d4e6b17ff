package driven

import (
	"context"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// TaskQueue hands job executions to workers. A task is a pointer to a job;
// the job record itself lives in the JobStore.
type TaskQueue interface {
	// Enqueue adds a task for processing.
	Enqueue(ctx context.Context, task *domain.Task) error

	// DequeueWithTimeout returns the next task, waiting up to timeout
	// seconds. Returns (nil, nil) when no task is available.
	DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error)

	// Ack acknowledges successful completion of a task.
	Ack(ctx context.Context, taskID string) error

	// Nack records a failure; the task is retried until its budget runs out.
	Nack(ctx context.Context, taskID string, reason string) error

	// Ping checks the queue backend is healthy.
	Ping(ctx context.Context) error
}
