package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

// withRetry runs fn with bounded retry and exponential backoff. Transient
// stage failures (network, throttling) get attempts-1 retries; once the
// budget is spent the last error is wrapped as an upstream failure.
func withRetry(ctx context.Context, attempts int, baseDelay time.Duration, op string, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("%w: %s failed after %d attempts: %v", domain.ErrUpstreamFailure, op, attempts, err)
}
