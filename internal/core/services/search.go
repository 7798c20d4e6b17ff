package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.SearchService = (*SearchService)(nil)

// SearchService answers semantic queries: embed the query text, then run it
// against the search engine.
type SearchService struct {
	engine       driven.SearchEngine
	embedder     driven.EmbeddingService
	defaultIndex string
	logger       *slog.Logger
}

// NewSearchService creates a search service.
func NewSearchService(engine driven.SearchEngine, embedder driven.EmbeddingService, defaultIndex string, logger *slog.Logger) *SearchService {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultIndex == "" {
		defaultIndex = "default-index"
	}
	return &SearchService{
		engine:       engine,
		embedder:     embedder,
		defaultIndex: defaultIndex,
		logger:       logger,
	}
}

// Search runs a semantic query against the named index.
func (s *SearchService) Search(ctx context.Context, query, indexName string, limit int) ([]*domain.SearchHit, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	if indexName == "" {
		indexName = s.defaultIndex
	}
	if limit <= 0 {
		limit = 10
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("embedding service %w", domain.ErrStoreUnconfigured)
	}

	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", domain.ErrUpstreamFailure, err)
	}

	hits, err := s.engine.Search(ctx, indexName, query, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrUpstreamFailure, err)
	}
	return hits, nil
}
