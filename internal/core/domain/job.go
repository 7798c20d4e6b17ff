package domain

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// JobKind identifies what an ingestion job does
type JobKind string

const (
	// JobKindIndex ingests every document under the input's prefix list
	JobKindIndex JobKind = "index"
	// JobKindIndexDocument ingests a single document end to end
	JobKindIndexDocument JobKind = "index_document"
	// JobKindSingleExtract runs only the extraction stage
	JobKindSingleExtract JobKind = "single_extract"
	// JobKindSingleChunk runs only the chunking stage
	JobKindSingleChunk JobKind = "single_chunk"
	// JobKindSingleEmbed runs only the embedding stage
	JobKindSingleEmbed JobKind = "single_embed"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final. Terminal jobs are immutable.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// statusRank orders statuses so transitions can only move forward.
var statusRank = map[JobStatus]int{
	JobStatusPending:   0,
	JobStatusRunning:   1,
	JobStatusCompleted: 2,
	JobStatusFailed:    2,
}

// CanTransition reports whether a job may move from one status to another.
// Transitions are monotonic forward only; terminal states never change.
func CanTransition(from, to JobStatus) bool {
	if from.Terminal() {
		return false
	}
	return statusRank[to] > statusRank[from]
}

// JobInput is what a job was started with.
// Which fields are set depends on the job kind.
type JobInput struct {
	// PrefixList narrows the source container for index jobs
	PrefixList []string `json:"prefix_list,omitempty"`

	// DocumentURL points at a single document for index_document
	// and single_extract jobs
	DocumentURL string `json:"document_url,omitempty"`

	// IndexName is the target search index
	IndexName string `json:"index_name,omitempty"`

	// Text is the raw input for single_chunk jobs
	Text string `json:"text,omitempty"`

	// Texts is the batch input for single_embed jobs
	Texts []string `json:"texts,omitempty"`

	// Filename and SourceURL label synthetic documents built from raw text
	Filename  string `json:"filename,omitempty"`
	SourceURL string `json:"source_url,omitempty"`

	// ChunkSize and ChunkOverlap override chunker defaults when > 0
	ChunkSize    int `json:"chunk_size,omitempty"`
	ChunkOverlap int `json:"chunk_overlap,omitempty"`
}

// JobOutput summarizes what a job produced. Index jobs fill the counters and
// the per-document error map; single-stage jobs fill their stage's payload.
type JobOutput struct {
	DocumentsTotal     int               `json:"documents_total,omitempty"`
	DocumentsSucceeded int               `json:"documents_succeeded,omitempty"`
	DocumentsFailed    int               `json:"documents_failed,omitempty"`
	ChunksIndexed      int               `json:"chunks_indexed,omitempty"`
	Errors             map[string]string `json:"errors,omitempty"`

	// Error carries the job-level fatal error for failed jobs
	Error string `json:"error,omitempty"`

	// Single-stage payloads
	Pages      []string        `json:"pages,omitempty"`
	Chunks     []Chunk         `json:"chunks,omitempty"`
	Embeddings []EmbeddedChunk `json:"embeddings,omitempty"`
}

// JobEvent is one entry in a job's ordered history log.
type JobEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name"`
	Document  string    `json:"document,omitempty"`
	Output    string    `json:"output,omitempty"`
}

// Job is one ingestion run, tracked end to end with a single status.
type Job struct {
	ID        string    `json:"id"`
	Kind      JobKind   `json:"kind"`
	Status    JobStatus `json:"status"`
	Input     JobInput  `json:"input"`
	Output    JobOutput `json:"output"`
	History   []JobEvent `json:"history,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"last_updated_at"`

	// Version counts persisted updates. Stores reject saves whose version
	// does not match the stored record, so two processes cannot both
	// advance the same job.
	Version int64 `json:"version"`
}

// NewJob creates a pending job with the given kind and input.
func NewJob(kind JobKind, input JobInput) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        GenerateID(),
		Kind:      kind,
		Status:    JobStatusPending,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo moves the job to a new status, enforcing monotonicity.
func (j *Job) TransitionTo(status JobStatus) error {
	if !CanTransition(j.Status, status) {
		return ErrInvalidTransition
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendEvent records a history event on the job.
func (j *Job) AppendEvent(name, document, output string) {
	j.History = append(j.History, JobEvent{
		Timestamp: time.Now().UTC(),
		Name:      name,
		Document:  document,
		Output:    output,
	})
	j.UpdatedAt = time.Now().UTC()
}
