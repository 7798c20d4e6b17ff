package driven

import (
	"context"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// UsageStore is the append-only sink for billable usage records.
type UsageStore interface {
	// Append writes one usage record. Records are immutable once written.
	Append(ctx context.Context, record *domain.UsageRecord) error

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}
