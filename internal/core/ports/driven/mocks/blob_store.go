package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// MockBlobStore is a mock implementation of BlobStore for testing
type MockBlobStore struct {
	mu         sync.Mutex
	containers map[string]map[string][]byte
	failList   error
}

// NewMockBlobStore creates a new MockBlobStore
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{
		containers: make(map[string]map[string][]byte),
	}
}

// AddBlob seeds a blob into the container
func (m *MockBlobStore) AddBlob(container, name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[container]; !ok {
		m.containers[container] = make(map[string][]byte)
	}
	m.containers[container][name] = data
}

// SetFailList makes List return err
func (m *MockBlobStore) SetFailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failList = err
}

func (m *MockBlobStore) List(ctx context.Context, container, prefix string) ([]domain.BlobRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}

	var refs []domain.BlobRef
	for name := range m.containers[container] {
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		refs = append(refs, domain.BlobRef{
			Name: name,
			URL:  m.blobURL(container, name),
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func (m *MockBlobStore) Upload(ctx context.Context, container, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[container]; !ok {
		m.containers[container] = make(map[string][]byte)
	}
	m.containers[container][name] = data
	return m.blobURL(container, name), nil
}

func (m *MockBlobStore) blobURL(container, name string) string {
	return fmt.Sprintf("mock://%s/%s", container, name)
}
