package driven

import (
	"context"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// AdmissionDecision is the outcome of one rate-limit check.
type AdmissionDecision struct {
	Allowed bool

	// Limit and Window identify which bound rejected the request
	// (e.g. 10 / "minute"). Zero values when allowed.
	Limit  int
	Window string

	// RetryAfter is the suggested wait in seconds when rejected.
	RetryAfter int
}

// RateLimiter admits or rejects requests per tenant using a two-window
// sliding counter. The check-then-record sequence is atomic per tenant:
// no two concurrent requests can both be admitted past a limit.
type RateLimiter interface {
	Allow(ctx context.Context, tenantID string, limits domain.PlanLimits) (AdmissionDecision, error)
}
