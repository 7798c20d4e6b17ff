package driven

import (
	"context"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// JobStore is the durable record of job state. Records are owned by the
// orchestrator; every other component only reads them.
type JobStore interface {
	// Create persists a new job. Fails with ErrAlreadyExists on id collision.
	Create(ctx context.Context, job *domain.Job) error

	// Get returns the job or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// Update saves a modified job. The job's Version must match the stored
	// record (ErrVersionConflict otherwise) and the status change must be a
	// legal forward transition (ErrInvalidTransition otherwise). On success
	// the job's Version is incremented.
	Update(ctx context.Context, job *domain.Job) error

	// List returns all jobs, newest first.
	List(ctx context.Context) ([]*domain.Job, error)
}
