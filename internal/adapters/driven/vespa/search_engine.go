package vespa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SearchEngine = (*SearchEngine)(nil)

// namespace groups every index this service writes under one Vespa namespace.
const namespace = "ingest"

// SearchEngine implements driven.SearchEngine using Vespa. Each logical index
// maps to a Vespa document type; records are written by deterministic docid,
// so re-writing a record overwrites rather than duplicates.
type SearchEngine struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds Vespa connection configuration
type Config struct {
	// BaseURL is the Vespa endpoint (e.g., http://localhost:8080)
	BaseURL string

	// Timeout for HTTP requests
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// NewSearchEngine creates a new Vespa-backed SearchEngine
func NewSearchEngine(cfg Config) *SearchEngine {
	return &SearchEngine{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// vespaDocument represents a record in Vespa's document format
type vespaDocument struct {
	Fields vespaFields `json:"fields"`
}

type vespaFields struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	SourcePages string    `json:"sourcepages"`
	StorageURL  string    `json:"storageUrl"`
	Vector      []float32 `json:"vector,omitempty"`
}

// EnsureIndex verifies the target document type exists and accepts queries.
// Schemas are deployed out of band; a missing schema surfaces here as an
// error before any record is written.
func (s *SearchEngine) EnsureIndex(ctx context.Context, name string, dimensions int) error {
	if name == "" {
		return fmt.Errorf("index name is required")
	}
	if dimensions <= 0 {
		return fmt.Errorf("invalid vector dimensionality %d", dimensions)
	}

	searchReq := map[string]interface{}{
		"yql":  fmt.Sprintf("select * from %s where true", name),
		"hits": 0,
	}

	if _, err := s.query(ctx, searchReq); err != nil {
		return fmt.Errorf("index %q not ready: %w", name, err)
	}
	return nil
}

// Upsert writes records keyed by their deterministic ids
func (s *SearchEngine) Upsert(ctx context.Context, index string, records []*domain.IndexRecord) error {
	for _, record := range records {
		if err := s.upsertRecord(ctx, index, record); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", record.ID, err)
		}
	}
	return nil
}

func (s *SearchEngine) upsertRecord(ctx context.Context, index string, record *domain.IndexRecord) error {
	doc := vespaDocument{
		Fields: vespaFields{
			ID:          record.ID,
			Content:     record.Content,
			SourcePages: record.SourcePages,
			StorageURL:  record.StorageURL,
			Vector:      record.Vector,
		},
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	// Vespa document API: POST /document/v1/{namespace}/{doctype}/docid/{docid}
	// Writing to an existing docid replaces the document.
	reqURL := fmt.Sprintf("%s/document/v1/%s/%s/docid/%s",
		s.baseURL, namespace, url.PathEscape(index), url.PathEscape(record.ID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vespa upsert failed: %s - %s", resp.Status, string(respBody))
	}

	return nil
}

// Search performs a semantic query against the index
func (s *SearchEngine) Search(ctx context.Context, index, query string, embedding []float32, limit int) ([]*domain.SearchHit, error) {
	yql := fmt.Sprintf("select * from %s where ({targetHits:%d}nearestNeighbor(vector,q))", index, limit)

	searchReq := map[string]interface{}{
		"yql":             yql,
		"hits":            limit,
		"input.query(q)":  embedding,
		"ranking.profile": "semantic",
	}
	if query != "" {
		searchReq["query"] = query
	}

	searchResp, err := s.query(ctx, searchReq)
	if err != nil {
		return nil, err
	}

	hits := make([]*domain.SearchHit, 0, len(searchResp.Root.Children))
	for _, child := range searchResp.Root.Children {
		hits = append(hits, &domain.SearchHit{
			ID:          child.Fields.ID,
			Content:     child.Fields.Content,
			SourcePages: child.Fields.SourcePages,
			StorageURL:  child.Fields.StorageURL,
			Score:       child.Relevance,
		})
	}
	return hits, nil
}

func (s *SearchEngine) query(ctx context.Context, searchReq map[string]interface{}) (*vespaSearchResponse, error) {
	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vespa search failed: %s - %s", resp.Status, string(respBody))
	}

	var searchResp vespaSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, err
	}
	return &searchResp, nil
}

// vespaSearchResponse represents Vespa's search response format
type vespaSearchResponse struct {
	Root struct {
		Fields struct {
			TotalCount int64 `json:"totalCount"`
		} `json:"fields"`
		Children []struct {
			Relevance float64     `json:"relevance"`
			Fields    vespaFields `json:"fields"`
		} `json:"children"`
	} `json:"root"`
}

// Ping verifies the search engine is available
func (s *SearchEngine) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/state/v1/health", nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vespa health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vespa unhealthy: %s", resp.Status)
	}

	return nil
}
