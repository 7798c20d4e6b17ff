package postgres

import (
	"context"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.UsageStore = (*UsageStore)(nil)

// UsageStore implements driven.UsageStore using PostgreSQL
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new UsageStore
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// Append writes one usage record
func (s *UsageStore) Append(ctx context.Context, record *domain.UsageRecord) error {
	query := `
		INSERT INTO usage_records (tenant_id, endpoint, timestamp, tokens_used, pages_processed, success)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.TenantID,
		record.Endpoint,
		record.Timestamp,
		record.TokensUsed,
		record.PagesProcessed,
		record.Success,
	)
	return err
}

// Ping checks the backing store is reachable
func (s *UsageStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
