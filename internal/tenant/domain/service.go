package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNoTenant        = errors.New("no_tenant")
	ErrNotFound        = errors.New("tenant_not_found")
	ErrInactive        = errors.New("tenant_inactive")
	ErrInvalidRequest  = errors.New("invalid_request")
)

// RegisterRequest creates a tenant and its trial subscription.
type RegisterRequest struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
	Plan         string `json:"plan"`
	PeriodMonths int    `json:"period_months"`
}

type Service interface {
	// Resolve maps an authenticated principal to its tenant id. Fails with
	// ErrUnauthenticated when there is no principal and ErrNoTenant when
	// the principal is not yet attached to a tenant.
	Resolve(ctx context.Context, principal Principal) (snowflake.ID, error)

	// IsCrossTenantSuperuser reports whether the principal may bypass
	// tenant scoping. Callers that use the bypass must record it with
	// RecordScopeBypass.
	IsCrossTenantSuperuser(principal Principal) bool

	// RecordScopeBypass writes the audit entry for a cross-tenant access.
	// The write is unconditional and never filtered.
	RecordScopeBypass(ctx context.Context, principal Principal, target snowflake.ID) error

	// Register creates the tenant together with its trial subscription.
	Register(ctx context.Context, req RegisterRequest) (*Tenant, error)

	Get(ctx context.Context, tenantID snowflake.ID) (*Tenant, error)

	// EnsureCustomerRef returns the tenant's processor customer reference,
	// creating one lazily on first use.
	EnsureCustomerRef(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (string, error)

	// Deactivate soft-deletes the tenant.
	Deactivate(ctx context.Context, tenantID snowflake.ID) error
}
