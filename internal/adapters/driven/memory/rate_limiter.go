// Package memory provides process-local fallbacks for the Redis-backed
// stores. Limits and job records held here do not survive a restart and are
// not shared across instances; acceptable only for single-instance
// deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RateLimiter = (*RateLimiter)(nil)

const (
	minuteWindow = 60 * time.Second
	hourWindow   = 3600 * time.Second
)

// RateLimiter is the process-local sliding-window limiter. Each tenant's
// window is guarded by its own mutex, so the check-then-append sequence is
// atomic per tenant.
type RateLimiter struct {
	mu      sync.Mutex
	tenants map[string]*tenantWindow

	// now is replaceable in tests
	now func() time.Time
}

type tenantWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// NewRateLimiter creates a process-local rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		tenants: make(map[string]*tenantWindow),
		now:     time.Now,
	}
}

func (l *RateLimiter) window(tenantID string) *tenantWindow {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.tenants[tenantID]
	if !ok {
		w = &tenantWindow{}
		l.tenants[tenantID] = w
	}
	return w
}

// Allow checks and records one request for the tenant.
func (l *RateLimiter) Allow(_ context.Context, tenantID string, limits domain.PlanLimits) (driven.AdmissionDecision, error) {
	w := l.window(tenantID)
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	// Prune everything outside the hour window
	cutoff := now.Add(-hourWindow)
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept

	if len(w.timestamps) >= limits.RequestsPerHour {
		return driven.AdmissionDecision{
			Allowed:    false,
			Limit:      limits.RequestsPerHour,
			Window:     "hour",
			RetryAfter: 3600 - int(now.Unix()%3600),
		}, nil
	}

	minuteCutoff := now.Add(-minuteWindow)
	minuteCount := 0
	for _, ts := range w.timestamps {
		if ts.After(minuteCutoff) {
			minuteCount++
		}
	}
	if minuteCount >= limits.RequestsPerMinute {
		return driven.AdmissionDecision{
			Allowed:    false,
			Limit:      limits.RequestsPerMinute,
			Window:     "minute",
			RetryAfter: 60,
		}, nil
	}

	w.timestamps = append(w.timestamps, now)
	return driven.AdmissionDecision{Allowed: true}, nil
}
