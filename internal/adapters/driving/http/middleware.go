package http

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/ingest-core/internal/adapters/driven/auth"
	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driving"
	"github.com/custodia-labs/ingest-core/internal/core/services"
)

// Context keys
type contextKey string

const (
	tenantContextKey contextKey = "tenant"
	usageContextKey  contextKey = "usage"
)

// APIKeyMiddleware authenticates API requests by key
type APIKeyMiddleware struct {
	authService driving.AuthService
}

// NewAPIKeyMiddleware creates a new APIKeyMiddleware
func NewAPIKeyMiddleware(authService driving.AuthService) *APIKeyMiddleware {
	return &APIKeyMiddleware{authService: authService}
}

// Authenticate resolves the API key and adds the tenant to the context.
// Runs before rate limiting and metering: unauthenticated requests consume
// no quota and leave no usage record.
func (m *APIKeyMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := extractCredential(r)
		if credential == "" {
			writeAPIError(w, http.StatusUnauthorized,
				domain.NewAPIError(domain.CodeUnauthenticated, "missing API key", nil))
			return
		}

		tenant, err := m.authService.Authenticate(r.Context(), credential)
		if err != nil {
			writeAPIError(w, http.StatusUnauthorized,
				domain.NewAPIError(domain.CodeUnauthenticated, "invalid API key", nil))
			return
		}

		ctx := context.WithValue(r.Context(), tenantContextKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTenant retrieves the authenticated tenant from the request context
func GetTenant(ctx context.Context) *domain.Tenant {
	if ctx == nil {
		return nil
	}
	tenant, ok := ctx.Value(tenantContextKey).(*domain.Tenant)
	if !ok {
		return nil
	}
	return tenant
}

// extractCredential pulls the API key from X-API-Key or Authorization: Bearer
func extractCredential(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RateLimitMiddleware admits requests against the tenant's plan windows
type RateLimitMiddleware struct {
	limiter driven.RateLimiter
	quotas  *domain.QuotaTable
}

// NewRateLimitMiddleware creates a new RateLimitMiddleware
func NewRateLimitMiddleware(limiter driven.RateLimiter, quotas *domain.QuotaTable) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, quotas: quotas}
}

// Handler rejects requests over the plan limits with 429. Rejected requests
// are not metered.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := GetTenant(r.Context())
		if tenant == nil {
			writeAPIError(w, http.StatusUnauthorized,
				domain.NewAPIError(domain.CodeUnauthenticated, "unauthenticated", nil))
			return
		}

		limits := m.quotas.Limits(tenant.Plan)
		decision, err := m.limiter.Allow(r.Context(), tenant.ID, limits)
		if err != nil {
			// A broken limiter must not take the API down with it
			log.Printf("rate limiter error for tenant %s: %v", tenant.ID, err)
			next.ServeHTTP(w, r)
			return
		}

		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
			writeAPIError(w, http.StatusTooManyRequests,
				domain.NewAPIError(domain.CodeRateLimited, "rate limit exceeded", map[string]any{
					"limit":       decision.Limit,
					"window":      decision.Window,
					"retry_after": decision.RetryAfter,
				}))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Usage accumulates billable counters while a handler runs. Handlers set the
// fields; the metering middleware reads them after the response is written.
type Usage struct {
	TokensUsed     int
	PagesProcessed int
}

// GetUsage retrieves the usage carrier from the request context
func GetUsage(ctx context.Context) *Usage {
	if ctx == nil {
		return nil
	}
	usage, ok := ctx.Value(usageContextKey).(*Usage)
	if !ok {
		return nil
	}
	return usage
}

// MeteringMiddleware records one usage entry per gated request
type MeteringMiddleware struct {
	meter *services.Meter
}

// NewMeteringMiddleware creates a new MeteringMiddleware
func NewMeteringMiddleware(meter *services.Meter) *MeteringMiddleware {
	return &MeteringMiddleware{meter: meter}
}

// Handler records the request outcome after it finishes. Success means a
// 2xx/3xx status; the record is enqueued regardless so failed requests are
// visible in the ledger too.
func (m *MeteringMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := GetTenant(r.Context())
		usage := &Usage{}
		ctx := context.WithValue(r.Context(), usageContextKey, usage)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		if tenant == nil {
			return
		}
		m.meter.Record(&domain.UsageRecord{
			TenantID:       tenant.ID,
			Endpoint:       r.URL.Path,
			Timestamp:      time.Now().UTC(),
			TokensUsed:     usage.TokensUsed,
			PagesProcessed: usage.PagesProcessed,
			Success:        rw.statusCode < 400,
		})
	})
}

// InternalAuthMiddleware guards operator endpoints with signed tokens
type InternalAuthMiddleware struct {
	tokens *auth.Adapter
}

// NewInternalAuthMiddleware creates a new InternalAuthMiddleware.
// tokens may be nil; the internal surface is then left open, which is only
// sane for local development.
func NewInternalAuthMiddleware(tokens *auth.Adapter) *InternalAuthMiddleware {
	return &InternalAuthMiddleware{tokens: tokens}
}

// Handler validates the operator token before letting the request through
func (m *InternalAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.tokens == nil {
			next.ServeHTTP(w, r)
			return
		}

		token := extractCredential(r)
		if token == "" {
			writeAPIError(w, http.StatusUnauthorized,
				domain.NewAPIError(domain.CodeUnauthenticated, "missing operator token", nil))
			return
		}
		if _, err := m.tokens.ParseToken(token); err != nil {
			writeAPIError(w, http.StatusUnauthorized,
				domain.NewAPIError(domain.CodeUnauthenticated, "invalid operator token", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Logging middleware

// LoggingMiddleware logs HTTP requests
type LoggingMiddleware struct{}

// NewLoggingMiddleware creates a new LoggingMiddleware
func NewLoggingMiddleware() *LoggingMiddleware {
	return &LoggingMiddleware{}
}

// Handler wraps an http.Handler with request logging
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, rw.statusCode, duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Recovery middleware

// RecoveryMiddleware recovers from panics
type RecoveryMiddleware struct{}

// NewRecoveryMiddleware creates a new RecoveryMiddleware
func NewRecoveryMiddleware() *RecoveryMiddleware {
	return &RecoveryMiddleware{}
}

// Handler wraps an http.Handler with panic recovery
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic recovered: %v", err)
				writeAPIError(w, http.StatusInternalServerError,
					domain.NewAPIError(domain.CodeUpstreamFailure, "internal server error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
