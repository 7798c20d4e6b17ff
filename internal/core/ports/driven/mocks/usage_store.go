package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// MockUsageStore is a mock implementation of UsageStore for testing
type MockUsageStore struct {
	mu       sync.Mutex
	records  []*domain.UsageRecord
	failWith error
}

// NewMockUsageStore creates a new MockUsageStore
func NewMockUsageStore() *MockUsageStore {
	return &MockUsageStore{}
}

// SetFailWith makes Append return err
func (m *MockUsageStore) SetFailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Records returns a copy of everything appended so far
func (m *MockUsageStore) Records() []*domain.UsageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.UsageRecord(nil), m.records...)
}

func (m *MockUsageStore) Append(ctx context.Context, record *domain.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.records = append(m.records, record)
	return nil
}

func (m *MockUsageStore) Ping(ctx context.Context) error {
	return nil
}
