package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Queue is the in-process task queue used when Redis is unconfigured.
type Queue struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
	ready chan string
}

// NewQueue creates an in-memory task queue with the given buffer.
func NewQueue(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 256
	}
	return &Queue{
		tasks: make(map[string]*domain.Task),
		ready: make(chan string, buffer),
	}
}

// Enqueue adds a task for processing.
func (q *Queue) Enqueue(_ context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}

	q.mu.Lock()
	q.tasks[task.ID] = task
	q.mu.Unlock()

	select {
	case q.ready <- task.ID:
		return nil
	default:
		return errors.New("queue full")
	}
}

// DequeueWithTimeout returns the next task, waiting up to timeout seconds.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	timer := time.NewTimer(time.Duration(timeout) * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-timer.C:
			return nil, nil
		case id := <-q.ready:
			q.mu.Lock()
			task, ok := q.tasks[id]
			if !ok {
				q.mu.Unlock()
				continue
			}
			if task.ScheduledFor.After(time.Now()) {
				// Not due yet, push back and let the timer run down
				q.mu.Unlock()
				go func() {
					time.Sleep(time.Until(task.ScheduledFor))
					select {
					case q.ready <- id:
					default:
					}
				}()
				continue
			}
			task.MarkProcessing()
			q.mu.Unlock()
			return task, nil
		}
	}
}

// Ack acknowledges successful completion of a task.
func (q *Queue) Ack(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task, ok := q.tasks[taskID]; ok {
		task.MarkCompleted()
	}
	return nil
}

// Nack records a failure; the task is retried until its budget runs out.
func (q *Queue) Nack(_ context.Context, taskID string, reason string) error {
	q.mu.Lock()
	task, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()
		return errors.New("task not found")
	}

	if task.CanRetry() {
		task.Retry(reason)
		q.mu.Unlock()
		select {
		case q.ready <- taskID:
		default:
		}
		return nil
	}

	task.MarkFailed(reason)
	q.mu.Unlock()
	return nil
}

// Ping always succeeds for the in-memory queue.
func (q *Queue) Ping(_ context.Context) error {
	return nil
}
