package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
)

// nowFunc is replaceable in tests.
var nowFunc = time.Now

// Verify interface compliance
var _ driven.JobStore = (*JobStore)(nil)

const (
	jobKeyPrefix = "ingest:job:"
	jobIndexKey  = "ingest:jobs"

	// Completed jobs stay readable for a week
	jobTTL = 7 * 24 * time.Hour
)

// JobStore persists job records in Redis. Saves are optimistic: the caller's
// version must match the stored record, so two processes driving the same
// job cannot both advance it.
type JobStore struct {
	client *redis.Client
}

// NewJobStore creates a Redis-backed JobStore.
func NewJobStore(client *redis.Client) *JobStore {
	return &JobStore{client: client}
}

// Create persists a new job record.
func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	ok, err := s.client.SetNX(ctx, jobKeyPrefix+job.ID, data, jobTTL).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if !ok {
		return domain.ErrAlreadyExists
	}

	if err := s.client.ZAdd(ctx, jobIndexKey, redis.Z{
		Score:  float64(job.CreatedAt.UnixNano()),
		Member: job.ID,
	}).Err(); err != nil {
		return fmt.Errorf("index job %s: %w", job.ID, err)
	}

	return nil
}

// Get returns a job by id.
func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	data, err := s.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Update saves a modified job under an optimistic version check.
// The stored record's version must equal the caller's, and a status change
// must be a legal forward transition.
func (s *JobStore) Update(ctx context.Context, job *domain.Job) error {
	key := jobKeyPrefix + job.ID

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored domain.Job
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("unmarshal stored job: %w", err)
		}

		if stored.Version != job.Version {
			return domain.ErrVersionConflict
		}
		if stored.Status != job.Status && !domain.CanTransition(stored.Status, job.Status) {
			return domain.ErrInvalidTransition
		}

		job.Version++
		updated, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, jobTTL)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// A concurrent writer slipped in between the read and the write
		return domain.ErrVersionConflict
	}
	return err
}

// List returns all jobs, newest first.
func (s *JobStore) List(ctx context.Context) ([]*domain.Job, error) {
	ids, err := s.client.ZRevRange(ctx, jobIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKeyPrefix + id
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// Expired record still present in the index
			continue
		}
		var job domain.Job
		if err := json.Unmarshal([]byte(str), &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}

	return jobs, nil
}

// Ping checks the Redis backend is healthy.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
