package ports

import (
	"context"
	"time"

	"github.com/medora/clinic-core/internal/core/domain"
)

// LoginInput carries credentials. TenantID is required for portal logins and
// ignored for staff.
type LoginInput struct {
	Kind     domain.PrincipalKind
	TenantID string
	Email    string
	Password string
}

// AuthResult is returned by Login and Refresh. RefreshToken is the raw
// opaque token; the transport layer only ever puts it in a cookie.
type AuthResult struct {
	Principal        domain.Principal
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// PasswordResetInput identifies the account a reset is requested for.
type PasswordResetInput struct {
	Kind     domain.PrincipalKind
	TenantID string
	Email    string
}

// AcceptInvitationInput completes a staff invitation.
type AcceptInvitationInput struct {
	Token    string
	Name     string
	Password string
}

// InviteInput creates a staff invitation within the inviter's tenant.
// TenantID is only read for super_admin inviters, who have no tenant.
type InviteInput struct {
	TenantID string
	Email    string
	Role     domain.Role
	Name     string
}

// AuthService is the gateway the HTTP layer calls into.
type AuthService interface {
	Login(ctx context.Context, in LoginInput) (*AuthResult, error)
	Refresh(ctx context.Context, rawRefreshToken string) (*AuthResult, error)
	Logout(ctx context.Context, rawRefreshToken string) error
	// Authenticate resolves a bearer token to the live principal.
	Authenticate(ctx context.Context, accessToken string) (domain.Principal, error)
	RequestPasswordReset(ctx context.Context, in PasswordResetInput) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, actor domain.Principal, currentPassword, newPassword string) error
	AcceptInvitation(ctx context.Context, in AcceptInvitationInput) (*domain.StaffPrincipal, error)
	Invite(ctx context.Context, actor domain.Principal, in InviteInput) (*domain.Invitation, error)
}

// StaffService is the tenant-scoped staff directory used by admins.
type StaffService interface {
	List(ctx context.Context, actor domain.Principal, filter StaffFilter) ([]*domain.StaffPrincipal, error)
	Get(ctx context.Context, actor domain.Principal, id string) (*domain.StaffPrincipal, error)
	ChangeRole(ctx context.Context, actor domain.Principal, id string, role domain.Role) (*domain.StaffPrincipal, error)
}

// AuditService exposes the audit trail to tenant administrators.
type AuditService interface {
	List(ctx context.Context, actor domain.Principal, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}
