package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/custodia-labs/ingest-core/internal/chunker"
	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.JobService = (*Orchestrator)(nil)

// Orchestrator drives ingestion jobs through the stage pipeline:
// extract → chunk → embed → index. One job may cover many documents;
// documents fan out on a bounded pool and fail independently. Progress is
// persisted to the JobStore after every stage completion, so a crashed run
// resumes from the last persisted state instead of starting over.
type Orchestrator struct {
	jobs      driven.JobStore
	queue     driven.TaskQueue
	blobs     driven.BlobStore
	extractor driven.TextExtractor
	chunker   *chunker.Chunker
	embedder  driven.EmbeddingService
	search    driven.SearchEngine
	logger    *slog.Logger

	parallelism    int
	container      string
	defaultIndex   string
	retryAttempts  int
	retryBaseDelay time.Duration
}

// OrchestratorConfig holds dependencies for the Orchestrator.
type OrchestratorConfig struct {
	Jobs      driven.JobStore
	Queue     driven.TaskQueue
	Blobs     driven.BlobStore
	Extractor driven.TextExtractor
	Chunker   *chunker.Chunker
	Embedder  driven.EmbeddingService
	Search    driven.SearchEngine
	Logger    *slog.Logger

	// Parallelism bounds concurrent documents per job. Default 20.
	Parallelism int

	// Container is the source blob container. Default "source".
	Container string

	// DefaultIndex is used when a job input names no index.
	DefaultIndex string

	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// NewOrchestrator creates a job orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 20
	}
	if cfg.Container == "" {
		cfg.Container = "source"
	}
	if cfg.DefaultIndex == "" {
		cfg.DefaultIndex = "default-index"
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Chunker == nil {
		cfg.Chunker = chunker.New(chunker.DefaultConfig())
	}

	return &Orchestrator{
		jobs:           cfg.Jobs,
		queue:          cfg.Queue,
		blobs:          cfg.Blobs,
		extractor:      cfg.Extractor,
		chunker:        cfg.Chunker,
		embedder:       cfg.Embedder,
		search:         cfg.Search,
		logger:         logger,
		parallelism:    cfg.Parallelism,
		container:      cfg.Container,
		defaultIndex:   cfg.DefaultIndex,
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
	}
}

// Start creates a pending job and enqueues it for execution.
// It returns the job id immediately; clients poll Status for progress.
func (o *Orchestrator) Start(ctx context.Context, kind domain.JobKind, input domain.JobInput) (string, error) {
	if err := validateInput(kind, input); err != nil {
		return "", err
	}
	if input.IndexName == "" {
		input.IndexName = o.defaultIndex
	}

	job := domain.NewJob(kind, input)
	if err := o.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	if err := o.queue.Enqueue(ctx, domain.NewTask(job.ID)); err != nil {
		return "", fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	o.logger.Info("job started", "job_id", job.ID, "kind", kind)
	return job.ID, nil
}

func validateInput(kind domain.JobKind, input domain.JobInput) error {
	switch kind {
	case domain.JobKindIndex:
		if len(input.PrefixList) == 0 {
			return fmt.Errorf("%w: prefix_list is required", domain.ErrInvalidInput)
		}
	case domain.JobKindIndexDocument, domain.JobKindSingleExtract:
		if input.DocumentURL == "" {
			return fmt.Errorf("%w: document_url is required", domain.ErrInvalidInput)
		}
	case domain.JobKindSingleChunk:
		if input.Text == "" {
			return fmt.Errorf("%w: text is required", domain.ErrInvalidInput)
		}
	case domain.JobKindSingleEmbed:
		if len(input.Texts) == 0 {
			return fmt.Errorf("%w: texts is required", domain.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidInput, kind)
	}
	return nil
}

// Status returns the externally visible state of a job.
func (o *Orchestrator) Status(ctx context.Context, jobID string, opts driving.StatusOptions) (*driving.JobStatusView, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return buildView(job, opts), nil
}

// ListStatuses returns the state of every known job.
func (o *Orchestrator) ListStatuses(ctx context.Context) ([]*driving.JobStatusView, error) {
	jobs, err := o.jobs.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*driving.JobStatusView, len(jobs))
	for i, job := range jobs {
		views[i] = buildView(job, driving.StatusOptions{})
	}
	return views, nil
}

func buildView(job *domain.Job, opts driving.StatusOptions) *driving.JobStatusView {
	view := &driving.JobStatusView{
		ID:            job.ID,
		Kind:          job.Kind,
		Status:        job.Status,
		CreatedAt:     job.CreatedAt.Format(time.RFC3339),
		LastUpdatedAt: job.UpdatedAt.Format(time.RFC3339),
		Output:        &job.Output,
	}
	if opts.IncludeInput {
		view.Input = &job.Input
	}
	if opts.IncludeHistory {
		events := make([]domain.JobEvent, len(job.History))
		copy(events, job.History)
		if !opts.IncludeHistoryOutput {
			for i := range events {
				events[i].Output = ""
			}
		}
		view.History = events
	}
	return view
}

// Run executes a job to completion. It is safe to call again for a job that
// already reached a terminal state; such calls are no-ops, so a re-delivered
// task never reprocesses a finished job. A job left running by a crashed
// process is re-driven to a terminal state.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		o.logger.Info("job already finished, skipping", "job_id", jobID, "status", job.Status)
		return nil
	}

	switch job.Kind {
	case domain.JobKindIndex, domain.JobKindIndexDocument:
		return o.runIndex(ctx, job)
	case domain.JobKindSingleExtract:
		return o.runSingleExtract(ctx, job)
	case domain.JobKindSingleChunk:
		return o.runSingleChunk(ctx, job)
	case domain.JobKindSingleEmbed:
		return o.runSingleEmbed(ctx, job)
	default:
		return o.failJob(ctx, job, fmt.Errorf("unknown job kind %q", job.Kind))
	}
}

// jobWriter serializes persisted updates for one running job.
type jobWriter struct {
	mu    sync.Mutex
	store driven.JobStore
	job   *domain.Job
}

func (w *jobWriter) apply(ctx context.Context, mutate func(*domain.Job) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := mutate(w.job); err != nil {
		return err
	}
	return w.store.Update(ctx, w.job)
}

// runIndex drives a multi-document (or single-document) indexing job.
func (o *Orchestrator) runIndex(ctx context.Context, job *domain.Job) error {
	if o.extractor == nil || o.embedder == nil {
		return o.failJob(ctx, job, fmt.Errorf("extraction and embedding services %w", domain.ErrStoreUnconfigured))
	}

	logger := o.logger.With("job_id", job.ID, "index", job.Input.IndexName)
	w := &jobWriter{store: o.jobs, job: job}

	// Resolve the document set. A listing failure is job-fatal.
	refs, err := o.resolveDocuments(ctx, job)
	if err != nil {
		logger.Error("failed to resolve documents", "error", err)
		return o.failJob(ctx, job, fmt.Errorf("resolve documents: %w", err))
	}

	// The target index must exist before any document is processed.
	if err := withRetry(ctx, o.retryAttempts, o.retryBaseDelay, "ensure index", func() error {
		return o.search.EnsureIndex(ctx, job.Input.IndexName, o.embedder.Dimensions())
	}); err != nil {
		logger.Error("failed to ensure index", "error", err)
		return o.failJob(ctx, job, err)
	}

	if err := w.apply(ctx, func(j *domain.Job) error {
		// A redelivered task finds the job already running; resuming it
		// must not trip the transition check.
		if j.Status != domain.JobStatusRunning {
			if err := j.TransitionTo(domain.JobStatusRunning); err != nil {
				return err
			}
		}
		j.AppendEvent("documents_resolved", "", strconv.Itoa(len(refs)))
		return nil
	}); err != nil {
		return err
	}

	logger.Info("processing documents", "count", len(refs), "parallelism", o.parallelism)

	// Fan out across the whole job with bounded parallelism. One failed
	// document is recorded and never aborts its siblings.
	pool, err := ants.NewPool(o.parallelism)
	if err != nil {
		return o.failJob(ctx, job, fmt.Errorf("create worker pool: %w", err))
	}
	defer pool.Release()

	type docResult struct {
		name   string
		chunks int
		err    error
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []docResult
	)

	for _, ref := range refs {
		ref := ref
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			chunks, procErr := o.processDocument(ctx, w, ref, job.Input)
			mu.Lock()
			results = append(results, docResult{name: ref.Name, chunks: chunks, err: procErr})
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			results = append(results, docResult{name: ref.Name, err: submitErr})
			mu.Unlock()
		}
	}
	wg.Wait()

	output := domain.JobOutput{DocumentsTotal: len(refs)}
	for _, res := range results {
		if res.err != nil {
			output.DocumentsFailed++
			if output.Errors == nil {
				output.Errors = make(map[string]string)
			}
			output.Errors[res.name] = res.err.Error()
			continue
		}
		output.DocumentsSucceeded++
		output.ChunksIndexed += res.chunks
	}

	// Every document failing is job-fatal; partial failure is not.
	status := domain.JobStatusCompleted
	if output.DocumentsTotal > 0 && output.DocumentsSucceeded == 0 {
		status = domain.JobStatusFailed
		output.Error = "all documents failed"
	}

	err = w.apply(ctx, func(j *domain.Job) error {
		j.Output = output
		j.AppendEvent("job_finished", "", fmt.Sprintf("%d/%d documents indexed", output.DocumentsSucceeded, output.DocumentsTotal))
		return j.TransitionTo(status)
	})
	if err != nil {
		return err
	}

	logger.Info("job finished",
		"status", status,
		"documents_total", output.DocumentsTotal,
		"documents_failed", output.DocumentsFailed,
		"chunks_indexed", output.ChunksIndexed,
	)
	return nil
}

// resolveDocuments expands the job input into concrete blob references.
func (o *Orchestrator) resolveDocuments(ctx context.Context, job *domain.Job) ([]domain.BlobRef, error) {
	if job.Kind == domain.JobKindIndexDocument {
		return []domain.BlobRef{{
			Name: path.Base(job.Input.DocumentURL),
			URL:  job.Input.DocumentURL,
		}}, nil
	}

	var refs []domain.BlobRef
	seen := make(map[string]bool)
	for _, prefix := range job.Input.PrefixList {
		var listed []domain.BlobRef
		err := withRetry(ctx, o.retryAttempts, o.retryBaseDelay, "list blobs", func() error {
			var listErr error
			listed, listErr = o.blobs.List(ctx, o.container, prefix)
			return listErr
		})
		if err != nil {
			return nil, err
		}
		for _, ref := range listed {
			if !seen[ref.Name] {
				seen[ref.Name] = true
				refs = append(refs, ref)
			}
		}
	}
	return refs, nil
}

// processDocument runs one document through the full stage pipeline.
// Each remote stage carries bounded retry; exhausted retries fail the
// document, not the job.
func (o *Orchestrator) processDocument(ctx context.Context, w *jobWriter, ref domain.BlobRef, input domain.JobInput) (int, error) {
	var doc *domain.Document
	err := withRetry(ctx, o.retryAttempts, o.retryBaseDelay, "extract", func() error {
		var exErr error
		doc, exErr = o.extractor.Extract(ctx, ref.URL)
		return exErr
	})
	if err != nil {
		return 0, err
	}
	_ = w.apply(ctx, func(j *domain.Job) error {
		j.AppendEvent("extract_completed", ref.Name, strconv.Itoa(len(doc.Pages))+" pages")
		return nil
	})

	chunks := o.chunker.Chunk(doc)
	if len(chunks) == 0 {
		_ = w.apply(ctx, func(j *domain.Job) error {
			j.AppendEvent("document_empty", ref.Name, "")
			return nil
		})
		return 0, nil
	}
	_ = w.apply(ctx, func(j *domain.Job) error {
		j.AppendEvent("chunk_completed", ref.Name, strconv.Itoa(len(chunks))+" chunks")
		return nil
	})

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var vectors [][]float32
	err = withRetry(ctx, o.retryAttempts, o.retryBaseDelay, "embed", func() error {
		var emErr error
		vectors, emErr = o.embedder.Embed(ctx, texts)
		return emErr
	})
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: embed returned %d vectors for %d chunks", domain.ErrUpstreamFailure, len(vectors), len(chunks))
	}
	_ = w.apply(ctx, func(j *domain.Job) error {
		j.AppendEvent("embed_completed", ref.Name, strconv.Itoa(len(vectors))+" vectors")
		return nil
	})

	records := make([]*domain.IndexRecord, len(chunks))
	for i, c := range chunks {
		records[i] = &domain.IndexRecord{
			ID:          domain.RecordID(c.Filename, c.StartIndex, c.EndIndex),
			Content:     c.Text,
			SourcePages: formatPageRange(c.StartPage, c.EndPage),
			StorageURL:  c.SourceURL,
			Vector:      vectors[i],
		}
	}

	err = withRetry(ctx, o.retryAttempts, o.retryBaseDelay, "index write", func() error {
		return o.search.Upsert(ctx, input.IndexName, records)
	})
	if err != nil {
		return 0, err
	}
	_ = w.apply(ctx, func(j *domain.Job) error {
		j.AppendEvent("index_completed", ref.Name, strconv.Itoa(len(records))+" records")
		return nil
	})

	return len(records), nil
}

func formatPageRange(start, end int) string {
	if start == end {
		return strconv.Itoa(start)
	}
	return fmt.Sprintf("%d-%d", start, end)
}

// runSingleExtract executes an extraction-only job.
func (o *Orchestrator) runSingleExtract(ctx context.Context, job *domain.Job) error {
	if o.extractor == nil {
		return o.failJob(ctx, job, fmt.Errorf("extraction service %w", domain.ErrStoreUnconfigured))
	}
	if err := o.markRunning(ctx, job); err != nil {
		return err
	}

	var doc *domain.Document
	err := withRetry(ctx, o.retryAttempts, o.retryBaseDelay, "extract", func() error {
		var exErr error
		doc, exErr = o.extractor.Extract(ctx, job.Input.DocumentURL)
		return exErr
	})
	if err != nil {
		return o.failJob(ctx, job, err)
	}

	job.Output = domain.JobOutput{Pages: doc.Pages}
	job.Input.Filename = doc.Filename
	job.AppendEvent("extract_completed", doc.Filename, strconv.Itoa(len(doc.Pages))+" pages")
	return o.completeJob(ctx, job)
}

// runSingleChunk executes a chunking-only job. Chunking is local, so there
// is no retry and no remote failure mode.
func (o *Orchestrator) runSingleChunk(ctx context.Context, job *domain.Job) error {
	if err := o.markRunning(ctx, job); err != nil {
		return err
	}

	filename := job.Input.Filename
	if filename == "" {
		filename = "user_text.txt"
	}

	ck := o.chunker
	if job.Input.ChunkSize > 0 || job.Input.ChunkOverlap > 0 {
		cfg := chunker.DefaultConfig()
		if job.Input.ChunkSize > 0 {
			cfg.MaxTokens = job.Input.ChunkSize
		}
		if job.Input.ChunkOverlap > 0 {
			cfg.OverlapTokens = job.Input.ChunkOverlap
		}
		ck = chunker.New(cfg)
	}

	chunks := ck.Chunk(&domain.Document{
		Filename:  filename,
		SourceURL: job.Input.SourceURL,
		Pages:     []string{job.Input.Text},
	})

	job.Output = domain.JobOutput{Chunks: chunks}
	job.AppendEvent("chunk_completed", filename, strconv.Itoa(len(chunks))+" chunks")
	return o.completeJob(ctx, job)
}

// runSingleEmbed executes an embedding-only job.
func (o *Orchestrator) runSingleEmbed(ctx context.Context, job *domain.Job) error {
	if o.embedder == nil {
		return o.failJob(ctx, job, fmt.Errorf("embedding service %w", domain.ErrStoreUnconfigured))
	}
	if err := o.markRunning(ctx, job); err != nil {
		return err
	}

	var vectors [][]float32
	err := withRetry(ctx, o.retryAttempts, o.retryBaseDelay, "embed", func() error {
		var emErr error
		vectors, emErr = o.embedder.Embed(ctx, job.Input.Texts)
		return emErr
	})
	if err != nil {
		return o.failJob(ctx, job, err)
	}

	embedded := make([]domain.EmbeddedChunk, len(job.Input.Texts))
	for i, text := range job.Input.Texts {
		filename := job.Input.Filename
		if filename == "" {
			filename = fmt.Sprintf("text_%d.txt", i)
		}
		embedded[i] = domain.EmbeddedChunk{
			Chunk: domain.Chunk{
				Text:       text,
				Filename:   filename,
				SourceURL:  job.Input.SourceURL,
				EndIndex:   len(text),
				TokenCount: chunker.CountTokens(text),
			},
			Embedding: vectors[i],
		}
	}

	job.Output = domain.JobOutput{Embeddings: embedded}
	job.AppendEvent("embed_completed", "", strconv.Itoa(len(embedded))+" vectors")
	return o.completeJob(ctx, job)
}

func (o *Orchestrator) markRunning(ctx context.Context, job *domain.Job) error {
	// Already persisted as running when a crashed run's task is redelivered
	if job.Status == domain.JobStatusRunning {
		return nil
	}
	if err := job.TransitionTo(domain.JobStatusRunning); err != nil {
		return err
	}
	return o.jobs.Update(ctx, job)
}

func (o *Orchestrator) completeJob(ctx context.Context, job *domain.Job) error {
	if err := job.TransitionTo(domain.JobStatusCompleted); err != nil {
		return err
	}
	return o.jobs.Update(ctx, job)
}

// failJob records a job-level fatal error. The error is persisted in the
// job output rather than propagated, so the task is not redelivered.
func (o *Orchestrator) failJob(ctx context.Context, job *domain.Job, cause error) error {
	o.logger.Error("job failed", "job_id", job.ID, "error", cause)

	job.Output.Error = scrub(cause)
	job.AppendEvent("job_failed", "", "")
	if err := job.TransitionTo(domain.JobStatusFailed); err != nil {
		return err
	}
	return o.jobs.Update(ctx, job)
}

// scrub keeps error detail readable without leaking internals.
func scrub(err error) string {
	msg := err.Error()
	// Collapse wrapped chains to something a client can act on
	if idx := strings.Index(msg, "\n"); idx >= 0 {
		msg = msg[:idx]
	}
	return msg
}
