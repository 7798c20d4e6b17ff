package mocks

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// MockTextExtractor is a mock implementation of TextExtractor for testing.
// Documents are registered by URL; unregistered URLs fall back to a single
// synthetic page unless FailUnknown is set.
type MockTextExtractor struct {
	mu          sync.Mutex
	documents   map[string]*domain.Document
	failURLs    map[string]error
	failNext    bool
	FailUnknown bool
	calls       int
}

// NewMockTextExtractor creates a new MockTextExtractor
func NewMockTextExtractor() *MockTextExtractor {
	return &MockTextExtractor{
		documents: make(map[string]*domain.Document),
		failURLs:  make(map[string]error),
	}
}

// AddDocument registers page texts for a document URL
func (m *MockTextExtractor) AddDocument(url string, pages ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[url] = &domain.Document{
		Filename:  path.Base(strings.SplitN(url, "?", 2)[0]),
		SourceURL: url,
		Pages:     pages,
	}
}

// FailURL makes extraction of the given URL return err
func (m *MockTextExtractor) FailURL(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failURLs[url] = err
}

// SetFailNext makes the next extraction fail once
func (m *MockTextExtractor) SetFailNext(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = fail
}

// Calls returns how many extractions were attempted
func (m *MockTextExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockTextExtractor) Extract(ctx context.Context, documentURL string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.failNext {
		m.failNext = false
		return nil, context.DeadlineExceeded
	}
	if err, ok := m.failURLs[documentURL]; ok {
		return nil, err
	}
	if doc, ok := m.documents[documentURL]; ok {
		copied := *doc
		copied.Pages = append([]string(nil), doc.Pages...)
		return &copied, nil
	}
	if m.FailUnknown {
		return nil, fmt.Errorf("no document registered for %s", documentURL)
	}

	return &domain.Document{
		Filename:  path.Base(strings.SplitN(documentURL, "?", 2)[0]),
		SourceURL: documentURL,
		Pages:     []string{"mock page text for " + documentURL},
	}, nil
}
