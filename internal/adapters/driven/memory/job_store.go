package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.JobStore = (*JobStore)(nil)

// JobStore is the in-memory job store. Records are stored as copies so
// callers never alias the stored state.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewJobStore creates an in-memory JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*domain.Job)}
}

func copyJob(job *domain.Job) *domain.Job {
	data, _ := json.Marshal(job)
	var out domain.Job
	_ = json.Unmarshal(data, &out)
	return &out
}

// Create persists a new job record.
func (s *JobStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// Get returns a job by id.
func (s *JobStore) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyJob(job), nil
}

// Update saves a modified job under an optimistic version check.
func (s *JobStore) Update(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != job.Version {
		return domain.ErrVersionConflict
	}
	if stored.Status != job.Status && !domain.CanTransition(stored.Status, job.Status) {
		return domain.ErrInvalidTransition
	}

	job.Version++
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// List returns all jobs, newest first.
func (s *JobStore) List(_ context.Context) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, copyJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}
