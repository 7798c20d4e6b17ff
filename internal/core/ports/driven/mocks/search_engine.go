package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// MockSearchEngine is a mock implementation of SearchEngine for testing.
// Records are stored per index keyed by id, so repeated upserts overwrite.
type MockSearchEngine struct {
	mu      sync.Mutex
	indexes map[string]map[string]*domain.IndexRecord
	dims    map[string]int

	failEnsure bool
	failUpsert bool
	upserts    int
}

// NewMockSearchEngine creates a new MockSearchEngine
func NewMockSearchEngine() *MockSearchEngine {
	return &MockSearchEngine{
		indexes: make(map[string]map[string]*domain.IndexRecord),
		dims:    make(map[string]int),
	}
}

func (m *MockSearchEngine) EnsureIndex(ctx context.Context, name string, dimensions int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEnsure {
		return context.DeadlineExceeded
	}
	if _, ok := m.indexes[name]; !ok {
		m.indexes[name] = make(map[string]*domain.IndexRecord)
		m.dims[name] = dimensions
	}
	return nil
}

func (m *MockSearchEngine) Upsert(ctx context.Context, index string, records []*domain.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.failUpsert {
		return context.DeadlineExceeded
	}
	if _, ok := m.indexes[index]; !ok {
		m.indexes[index] = make(map[string]*domain.IndexRecord)
	}
	for _, r := range records {
		m.indexes[index][r.ID] = r
	}
	return nil
}

func (m *MockSearchEngine) Search(ctx context.Context, index, query string, embedding []float32, limit int) ([]*domain.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hits []*domain.SearchHit
	for _, r := range m.indexes[index] {
		if query != "" && !strings.Contains(strings.ToLower(r.Content), strings.ToLower(query)) {
			continue
		}
		hits = append(hits, &domain.SearchHit{
			ID:          r.ID,
			Content:     r.Content,
			SourcePages: r.SourcePages,
			StorageURL:  r.StorageURL,
			Score:       1.0,
		})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func (m *MockSearchEngine) Ping(ctx context.Context) error {
	return nil
}

// Helper methods for testing

func (m *MockSearchEngine) SetFailEnsure(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failEnsure = fail
}

func (m *MockSearchEngine) SetFailUpsert(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpsert = fail
}

// RecordCount returns the number of distinct records in the index
func (m *MockSearchEngine) RecordCount(index string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.indexes[index])
}

// Records returns every record currently held by the index
func (m *MockSearchEngine) Records(index string) []*domain.IndexRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]*domain.IndexRecord, 0, len(m.indexes[index]))
	for _, r := range m.indexes[index] {
		records = append(records, r)
	}
	return records
}

// UpsertCalls returns how many upsert batches were attempted
func (m *MockSearchEngine) UpsertCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}
