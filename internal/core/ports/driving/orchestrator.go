package driving

import (
	"context"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// StatusOptions controls how much of a job record a status read returns.
type StatusOptions struct {
	// IncludeHistory returns the ordered event log
	IncludeHistory bool

	// IncludeHistoryOutput keeps per-event output payloads in the log;
	// otherwise they are elided
	IncludeHistoryOutput bool

	// IncludeInput returns the job's original input
	IncludeInput bool
}

// JobStatusView is the externally visible shape of a job.
type JobStatusView struct {
	ID            string             `json:"id"`
	Kind          domain.JobKind     `json:"kind"`
	Status        domain.JobStatus   `json:"status"`
	CreatedAt     string             `json:"created_time"`
	LastUpdatedAt string             `json:"last_updated_time"`
	Input         *domain.JobInput   `json:"input,omitempty"`
	Output        *domain.JobOutput  `json:"output,omitempty"`
	History       []domain.JobEvent  `json:"history_events,omitempty"`
}

// JobService starts ingestion jobs and reports their status.
type JobService interface {
	// Start creates a pending job and begins execution asynchronously.
	// It returns the job id immediately.
	Start(ctx context.Context, kind domain.JobKind, input domain.JobInput) (string, error)

	// Status returns the job's current state or domain.ErrNotFound.
	Status(ctx context.Context, jobID string, opts StatusOptions) (*JobStatusView, error)

	// ListStatuses returns the state of every known job.
	ListStatuses(ctx context.Context) ([]*JobStatusView, error)
}

// AuthService resolves API credentials to tenants.
type AuthService interface {
	// Authenticate validates a credential and returns the tenant,
	// or domain.ErrUnauthenticated.
	Authenticate(ctx context.Context, credential string) (*domain.Tenant, error)
}

// SearchService answers semantic queries against an index.
type SearchService interface {
	Search(ctx context.Context, query, indexName string, limit int) ([]*domain.SearchHit, error)
}
