package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.AuthService = (*AuthService)(nil)

// devKeyPrefix marks credentials accepted by the development bypass.
const devKeyPrefix = "dev-"

// AuthService resolves API credentials against the principal store.
//
// The development bypass synthesizes a developer tenant for "dev-" keys, but
// only when dev mode was explicitly enabled AND no principal store is
// configured. A configured-but-unreachable store never activates the bypass;
// outages surface as authentication errors instead of silently admitting
// unvetted callers.
type AuthService struct {
	principals driven.PrincipalStore
	devMode    bool
	logger     *slog.Logger
}

// NewAuthService creates an auth service. principals may be nil when no
// store is configured; then only the dev bypass (if enabled) can admit.
func NewAuthService(principals driven.PrincipalStore, devMode bool, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{principals: principals, devMode: devMode, logger: logger}
}

// Authenticate validates a credential and returns the owning tenant.
func (s *AuthService) Authenticate(ctx context.Context, credential string) (*domain.Tenant, error) {
	if credential == "" {
		return nil, domain.ErrUnauthenticated
	}

	if s.principals == nil {
		if s.devMode && strings.HasPrefix(credential, devKeyPrefix) {
			s.logger.Warn("development auth bypass used", "credential_prefix", devKeyPrefix)
			return &domain.Tenant{
				ID:         "dev-tenant",
				Name:       "developer",
				Plan:       domain.PlanDeveloper,
				Active:     true,
				LastUsedAt: time.Now().UTC(),
			}, nil
		}
		return nil, domain.ErrUnauthenticated
	}

	tenant, err := s.principals.GetByAPIKeyDigest(ctx, domain.APIKeyDigest(credential))
	if err != nil {
		// Unknown key and unreachable store both read as unauthenticated;
		// keep the distinction in the logs only.
		if err != domain.ErrNotFound {
			s.logger.Error("principal store lookup failed", "error", err)
		}
		return nil, domain.ErrUnauthenticated
	}
	if !tenant.Active {
		return nil, domain.ErrUnauthenticated
	}

	// lastUsedAt is bookkeeping; never block or fail the request on it.
	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.principals.TouchLastUsed(touchCtx, tenant.ID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to update last_used_at", "tenant_id", tenant.ID, "error", err)
		}
	}()

	return tenant, nil
}
