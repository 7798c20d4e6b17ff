package blob

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

// Ensure Store implements BlobStore
var _ driven.BlobStore = (*Store)(nil)

// listPageSize bounds one listing round trip.
const listPageSize = 500

// Store is an HTTP client for the object storage service. Containers map to
// URL path segments; listing is marker-paginated.
type Store struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewStore creates a blob storage client for the given endpoint.
func NewStore(endpoint, apiKey string) (*Store, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("blob endpoint is required")
	}

	return &Store{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}, nil
}

// listResponse is one page of a container listing
type listResponse struct {
	Blobs []struct {
		Name string `json:"name"`
	} `json:"blobs"`
	NextMarker string `json:"next_marker,omitempty"`
}

// List returns every blob in the container whose name starts with prefix,
// following pagination markers until the listing is exhausted.
func (s *Store) List(ctx context.Context, container, prefix string) ([]domain.BlobRef, error) {
	var refs []domain.BlobRef
	marker := ""

	for {
		page, err := s.listPage(ctx, container, prefix, marker)
		if err != nil {
			return nil, err
		}

		for _, b := range page.Blobs {
			refs = append(refs, domain.BlobRef{
				Name: b.Name,
				URL:  s.BlobURL(container, b.Name),
			})
		}

		if page.NextMarker == "" {
			return refs, nil
		}
		marker = page.NextMarker
	}
}

func (s *Store) listPage(ctx context.Context, container, prefix, marker string) (*listResponse, error) {
	q := url.Values{}
	q.Set("maxresults", fmt.Sprintf("%d", listPageSize))
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if marker != "" {
		q.Set("marker", marker)
	}

	reqURL := fmt.Sprintf("%s/%s?%s", s.endpoint, url.PathEscape(container), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.authorize(req)

	httpResp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob list request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, fmt.Errorf("blob list error: %s", httpResp.Status)
	}

	var resp listResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode blob listing: %w", err)
	}
	return &resp, nil
}

// Upload writes data under name in the container and returns the blob URL.
func (s *Store) Upload(ctx context.Context, container, name string, data []byte) (string, error) {
	blobURL := s.BlobURL(container, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, blobURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	s.authorize(req)

	httpResp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("blob upload request: %w", err)
	}
	defer httpResp.Body.Close()
	io.Copy(io.Discard, httpResp.Body)

	if httpResp.StatusCode >= 400 {
		return "", fmt.Errorf("blob upload error: %s", httpResp.Status)
	}
	return blobURL, nil
}

// BlobURL derives the addressable URL for a blob. Name segments are escaped
// individually so nested paths stay navigable.
func (s *Store) BlobURL(container, name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/%s/%s", s.endpoint, url.PathEscape(container), strings.Join(segments, "/"))
}

func (s *Store) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}
