package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driving"
)

// Bridge exposes single pipeline stages synchronously. Each call wraps the
// stage as a one-item job, then blocks the caller polling the job store
// until the job finishes or the wait bound expires. The bound is
// client-side: on timeout the job keeps running and its result is simply
// discarded by the caller.
type Bridge struct {
	jobs driven.JobStore
	svc  driving.JobService

	pollInterval   time.Duration
	extractTimeout time.Duration
	defaultTimeout time.Duration
}

// BridgeConfig holds dependencies for the Bridge.
type BridgeConfig struct {
	Jobs driven.JobStore
	Svc  driving.JobService

	// PollInterval between job-store reads. Default 250ms.
	PollInterval time.Duration

	// ExtractTimeout bounds extraction waits. Default 300s: document
	// cracking is by far the slowest stage.
	ExtractTimeout time.Duration

	// DefaultTimeout bounds every other stage. Default 60s.
	DefaultTimeout time.Duration
}

// NewBridge creates a synchronous single-stage bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 300 * time.Second
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 60 * time.Second
	}
	return &Bridge{
		jobs:           cfg.Jobs,
		svc:            cfg.Svc,
		pollInterval:   cfg.PollInterval,
		extractTimeout: cfg.ExtractTimeout,
		defaultTimeout: cfg.DefaultTimeout,
	}
}

// Extract runs the extraction stage on one document and waits for the result.
func (b *Bridge) Extract(ctx context.Context, documentURL string) (*domain.JobOutput, string, error) {
	return b.run(ctx, domain.JobKindSingleExtract, domain.JobInput{DocumentURL: documentURL}, b.extractTimeout)
}

// Chunk runs the chunking stage on raw text and waits for the result.
func (b *Bridge) Chunk(ctx context.Context, input domain.JobInput) (*domain.JobOutput, string, error) {
	return b.run(ctx, domain.JobKindSingleChunk, input, b.defaultTimeout)
}

// Embed runs the embedding stage on a batch of texts and waits for the result.
func (b *Bridge) Embed(ctx context.Context, input domain.JobInput) (*domain.JobOutput, string, error) {
	return b.run(ctx, domain.JobKindSingleEmbed, input, b.defaultTimeout)
}

// run starts the one-item job and polls until terminal or timeout.
// Returns the job output, the filename recorded on the job, and an error:
// ErrBridgeTimeout when the bound is exceeded, or the stage's own error when
// the job failed.
func (b *Bridge) run(ctx context.Context, kind domain.JobKind, input domain.JobInput, timeout time.Duration) (*domain.JobOutput, string, error) {
	jobID, err := b.svc.Start(ctx, kind, input)
	if err != nil {
		return nil, "", err
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-ticker.C:
		}

		job, err := b.jobs.Get(ctx, jobID)
		if err != nil {
			return nil, "", err
		}

		switch job.Status {
		case domain.JobStatusCompleted:
			return &job.Output, job.Input.Filename, nil
		case domain.JobStatusFailed:
			return nil, "", fmt.Errorf("%w: %s", domain.ErrUpstreamFailure, job.Output.Error)
		}

		if time.Now().After(deadline) {
			return nil, "", fmt.Errorf("%w: %s did not finish within %s", domain.ErrBridgeTimeout, kind, timeout)
		}
	}
}
