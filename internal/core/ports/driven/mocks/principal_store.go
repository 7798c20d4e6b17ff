package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// MockPrincipalStore is a mock implementation of PrincipalStore for testing
type MockPrincipalStore struct {
	mu       sync.Mutex
	byDigest map[string]*domain.Tenant
	failWith error
	touches  map[string]time.Time
}

// NewMockPrincipalStore creates a new MockPrincipalStore
func NewMockPrincipalStore() *MockPrincipalStore {
	return &MockPrincipalStore{
		byDigest: make(map[string]*domain.Tenant),
		touches:  make(map[string]time.Time),
	}
}

// AddTenant registers a tenant resolvable by the plaintext API key
func (m *MockPrincipalStore) AddTenant(apiKey string, tenant *domain.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenant.APIKeyDigest = domain.APIKeyDigest(apiKey)
	m.byDigest[tenant.APIKeyDigest] = tenant
}

// SetFailWith makes every lookup return err
func (m *MockPrincipalStore) SetFailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// LastTouch returns the most recent TouchLastUsed time for the tenant
func (m *MockPrincipalStore) LastTouch(tenantID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.touches[tenantID]
	return at, ok
}

func (m *MockPrincipalStore) GetByAPIKeyDigest(ctx context.Context, digest string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	tenant, ok := m.byDigest[digest]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *tenant
	return &copied, nil
}

func (m *MockPrincipalStore) TouchLastUsed(ctx context.Context, tenantID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touches[tenantID] = at
	return nil
}

func (m *MockPrincipalStore) Ping(ctx context.Context) error {
	return nil
}
