package domain

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"
)

// Plan is a named quota bundle.
type Plan string

const (
	PlanFree         Plan = "free"
	PlanDeveloper    Plan = "developer"
	PlanBasic        Plan = "basic"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// Tenant is an authenticated API consumer bound to a plan tier.
// Tenants are provisioned out of band; only LastUsedAt changes at runtime.
type Tenant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKeyDigest string    `json:"-"`
	Plan         Plan      `json:"plan"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
}

// APIKeyDigest derives the stored lookup digest for an API key.
// Deterministic so keys can be resolved without storing plaintext.
func APIKeyDigest(key string) string {
	sum := sha3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// UsageRecord is one billable request, appended after the request finishes.
// Records are append-only and immutable once written.
type UsageRecord struct {
	TenantID       string    `json:"tenant_id"`
	Endpoint       string    `json:"endpoint"`
	Timestamp      time.Time `json:"timestamp"`
	TokensUsed     int       `json:"tokens_used"`
	PagesProcessed int       `json:"pages_processed"`
	Success        bool      `json:"success"`
}
