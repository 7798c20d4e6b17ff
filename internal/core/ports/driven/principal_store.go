package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// PrincipalStore resolves API credentials to tenant records.
// The directory service that provisions principals is external.
type PrincipalStore interface {
	// GetByAPIKeyDigest returns the tenant owning the digest or ErrNotFound.
	GetByAPIKeyDigest(ctx context.Context, digest string) (*domain.Tenant, error)

	// TouchLastUsed records a successful authentication.
	TouchLastUsed(ctx context.Context, tenantID string, at time.Time) error

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}
