package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven/mocks"
)

func newSearchFixture(t *testing.T) (*SearchService, *mocks.MockSearchEngine) {
	t.Helper()
	engine := mocks.NewMockSearchEngine()
	embedder := mocks.NewMockEmbeddingService()
	return NewSearchService(engine, embedder, "test-index", nil), engine
}

func seedRecords(t *testing.T, engine *mocks.MockSearchEngine, index string) {
	t.Helper()
	err := engine.Upsert(context.Background(), index, []*domain.IndexRecord{
		{ID: "r1", Content: "quarterly revenue report", SourcePages: "1-2", StorageURL: "mock://source/report.pdf"},
		{ID: "r2", Content: "engineering handbook", SourcePages: "3", StorageURL: "mock://source/handbook.pdf"},
	})
	require.NoError(t, err)
}

func TestSearchService_Search(t *testing.T) {
	svc, engine := newSearchFixture(t)
	seedRecords(t, engine, "test-index")

	hits, err := svc.Search(context.Background(), "revenue", "", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "r1", hits[0].ID)
	assert.Equal(t, "quarterly revenue report", hits[0].Content)
}

func TestSearchService_ExplicitIndex(t *testing.T) {
	svc, engine := newSearchFixture(t)
	seedRecords(t, engine, "other-index")

	hits, err := svc.Search(context.Background(), "handbook", "other-index", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	// The default index holds nothing
	hits, err = svc.Search(context.Background(), "handbook", "", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchService_EmptyQueryRejected(t *testing.T) {
	svc, _ := newSearchFixture(t)

	_, err := svc.Search(context.Background(), "", "", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSearchService_UnconfiguredEmbedder(t *testing.T) {
	svc := NewSearchService(mocks.NewMockSearchEngine(), nil, "test-index", nil)

	_, err := svc.Search(context.Background(), "revenue", "", 10)
	assert.ErrorIs(t, err, domain.ErrStoreUnconfigured)
}

func TestSearchService_EmbedFailure(t *testing.T) {
	engine := mocks.NewMockSearchEngine()
	embedder := mocks.NewMockEmbeddingService()
	embedder.SetFailAlways(true)
	svc := NewSearchService(engine, embedder, "test-index", nil)

	_, err := svc.Search(context.Background(), "revenue", "", 10)
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
}
