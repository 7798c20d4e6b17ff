package domain

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Document is the extraction stage's view of a source blob: the filename,
// where it came from, and the ordered page texts the extractor produced.
type Document struct {
	Filename  string   `json:"filename"`
	SourceURL string   `json:"source_url"`
	Pages     []string `json:"pages"`
}

// Chunk is one bounded slice of a document's concatenated text.
// Offsets are character positions into the concatenated source and are
// non-overlapping and monotonically increasing within a document.
type Chunk struct {
	Text       string `json:"text"`
	Filename   string `json:"filename"`
	SourceURL  string `json:"source_url"`
	StartPage  int    `json:"start_page"`
	EndPage    int    `json:"end_page"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
	TokenCount int    `json:"token_count"`
}

// EmbeddedChunk is a chunk plus its embedding vector. All embeddings
// produced within one job share the same dimensionality.
type EmbeddedChunk struct {
	Chunk
	Embedding []float32 `json:"embedding"`
}

// IndexRecord is a single searchable unit persisted to the search service.
type IndexRecord struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	SourcePages string    `json:"source_pages"`
	StorageURL  string    `json:"storage_url"`
	Vector      []float32 `json:"vector,omitempty"`
}

// RecordID derives the deterministic index-record identifier for a chunk.
// Re-indexing the same document always yields the same set of ids, so an
// upsert can never duplicate search entries.
func RecordID(filename string, startIndex, endIndex int) string {
	sum := sha3.Sum256([]byte(fmt.Sprintf("%s:%d:%d", filename, startIndex, endIndex)))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SearchHit is one result returned from the search engine.
type SearchHit struct {
	ID          string  `json:"id"`
	Content     string  `json:"content"`
	SourcePages string  `json:"source_pages"`
	StorageURL  string  `json:"storage_url"`
	Score       float64 `json:"score"`
}

// BlobRef points at one blob in the source container.
type BlobRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}
