package docintel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
)

// Ensure Extractor implements TextExtractor
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor extracts per-page text from documents through a document
// intelligence HTTP service. The service receives a document URL and returns
// the recognized text page by page.
type Extractor struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewExtractor creates an extraction client for the given service endpoint.
func NewExtractor(endpoint, apiKey string) (*Extractor, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("extraction endpoint is required")
	}

	return &Extractor{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}, nil
}

// extractRequest is the request body for the extraction service
type extractRequest struct {
	URL string `json:"url"`
}

// extractResponse is the response from the extraction service
type extractResponse struct {
	Pages []struct {
		Number int    `json:"number"`
		Text   string `json:"text"`
	} `json:"pages"`
	Error string `json:"error,omitempty"`
}

// Extract sends the document URL to the extraction service and returns the
// recognized text, one entry per page in page order.
func (e *Extractor) Extract(ctx context.Context, documentURL string) (*domain.Document, error) {
	if documentURL == "" {
		return nil, fmt.Errorf("%w: document URL is required", domain.ErrInvalidInput)
	}

	body, err := json.Marshal(extractRequest{URL: documentURL})
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", e.apiKey)
	}

	httpResp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}

	var resp extractResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		if resp.Error != "" {
			return nil, fmt.Errorf("extraction service error: %s", resp.Error)
		}
		return nil, fmt.Errorf("extraction service error: %s", httpResp.Status)
	}

	pages := make([]string, len(resp.Pages))
	for i, p := range resp.Pages {
		pages[i] = p.Text
	}

	return &domain.Document{
		Filename:  filenameFromURL(documentURL),
		SourceURL: documentURL,
		Pages:     pages,
	}, nil
}

// filenameFromURL derives a display filename from the document URL,
// dropping any query string.
func filenameFromURL(documentURL string) string {
	trimmed := documentURL
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return path.Base(trimmed)
}
