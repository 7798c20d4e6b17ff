package driven

import (
	"context"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// TextExtractor turns a document reference into ordered page texts.
// The actual extraction/OCR implementation is an external collaborator.
type TextExtractor interface {
	// Extract analyzes the document behind the URL and returns its pages
	Extract(ctx context.Context, documentURL string) (*domain.Document, error)
}

// EmbeddingService generates text embeddings
type EmbeddingService interface {
	// Embed generates embeddings for multiple texts, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a search query
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Dimensions returns the embedding dimension size
	Dimensions() int

	// Model returns the model name being used
	Model() string
}

// SearchEngine is the searchable index the pipeline writes into.
type SearchEngine interface {
	// EnsureIndex makes sure the target index exists and can take records
	// of the given vector dimensionality
	EnsureIndex(ctx context.Context, name string, dimensions int) error

	// Upsert writes records keyed by their deterministic ids.
	// Writing the same record twice overwrites, never duplicates.
	Upsert(ctx context.Context, index string, records []*domain.IndexRecord) error

	// Search runs a semantic query against the index
	Search(ctx context.Context, index, query string, embedding []float32, limit int) ([]*domain.SearchHit, error)

	// Ping checks the engine is reachable
	Ping(ctx context.Context) error
}

// BlobStore lists and uploads blobs in the source object store.
type BlobStore interface {
	// List returns every blob under the prefix, paginating internally
	List(ctx context.Context, container, prefix string) ([]domain.BlobRef, error)

	// Upload stores data under the given name and returns its URL
	Upload(ctx context.Context, container, name string, data []byte) (string, error)
}
