package ports

import (
	"context"
	"time"

	"github.com/medora/clinic-core/internal/core/domain"
)

// CredentialRepository is the persistence the credential store and the auth
// middleware need. Lookups of missing accounts return domain.ErrNotFound.
type CredentialRepository interface {
	// FindStaffByEmail looks a staff account up globally; staff emails are unique.
	FindStaffByEmail(ctx context.Context, email string) (*domain.StaffPrincipal, error)
	// FindPortalByEmail looks a portal account up within one tenant.
	FindPortalByEmail(ctx context.Context, tenantID, email string) (*domain.PortalPrincipal, error)
	// FindAccount loads the live account behind a token subject.
	FindAccount(ctx context.Context, kind domain.PrincipalKind, id string) (*domain.Account, error)
	// UpdateLoginState persists the lockout fields in a single statement.
	// lastLoginAt is only written for portal accounts and only when non-nil.
	UpdateLoginState(ctx context.Context, kind domain.PrincipalKind, id string, state domain.LoginState, lastLoginAt *time.Time) error
	// ChangePassword replaces the hash, clears the lockout and deletes every
	// session of the principal in one transaction.
	ChangePassword(ctx context.Context, kind domain.PrincipalKind, id, passwordHash string) error
}

// StaffRepository is the tenant-scoped staff directory. Every method takes a
// TenantScope; rows outside the scope behave as missing.
type StaffRepository interface {
	List(ctx context.Context, scope domain.TenantScope, filter StaffFilter) ([]*domain.StaffPrincipal, error)
	Get(ctx context.Context, scope domain.TenantScope, id string) (*domain.StaffPrincipal, error)
	UpdateRole(ctx context.Context, scope domain.TenantScope, id string, role domain.Role) (*domain.StaffPrincipal, error)
}

// StaffFilter narrows a staff listing.
type StaffFilter struct {
	Role   domain.Role // optional
	Limit  int
	Offset int
}
