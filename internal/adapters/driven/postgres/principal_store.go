package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PrincipalStore = (*PrincipalStore)(nil)

// PrincipalStore implements driven.PrincipalStore using PostgreSQL
type PrincipalStore struct {
	db *DB
}

// NewPrincipalStore creates a new PrincipalStore
func NewPrincipalStore(db *DB) *PrincipalStore {
	return &PrincipalStore{db: db}
}

// GetByAPIKeyDigest retrieves the tenant owning the digest
func (s *PrincipalStore) GetByAPIKeyDigest(ctx context.Context, digest string) (*domain.Tenant, error) {
	query := `
		SELECT id, name, api_key_digest, plan, active, created_at, last_used_at
		FROM tenants
		WHERE api_key_digest = $1
	`

	var tenant domain.Tenant
	err := s.db.QueryRowContext(ctx, query, digest).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.APIKeyDigest,
		&tenant.Plan,
		&tenant.Active,
		&tenant.CreatedAt,
		&tenant.LastUsedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &tenant, nil
}

// TouchLastUsed records a successful authentication
func (s *PrincipalStore) TouchLastUsed(ctx context.Context, tenantID string, at time.Time) error {
	query := `UPDATE tenants SET last_used_at = $1 WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, at, tenantID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Ping checks the backing store is reachable
func (s *PrincipalStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
