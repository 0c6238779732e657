package service

import (
	"github.com/medora/clinic-core/internal/core/domain"
)

// AccessControl evaluates role gates and hands out tenant scopes.
type AccessControl struct{}

// NewAccessControl returns the role/tenant gate.
func NewAccessControl() AccessControl { return AccessControl{} }

// Authorize allows p when required is empty, when p is super_admin, or when
// p's role is one of required. Principals carrying an unknown role are never
// allowed past a non-empty gate.
func (AccessControl) Authorize(p domain.Principal, required ...domain.Role) error {
	if len(required) == 0 {
		return nil
	}
	if !p.Role.Valid() {
		return domain.ErrForbidden
	}
	if p.IsSuperAdmin() {
		return nil
	}
	for _, r := range required {
		if p.Role == r {
			return nil
		}
	}
	return domain.ErrForbidden
}

// Scope returns the tenant scope of p. A non-super_admin principal without a
// tenant gets ErrForbidden instead of a scope that would match nothing.
func (AccessControl) Scope(p domain.Principal) (domain.TenantScope, error) {
	scope := domain.ScopeOf(p)
	if !scope.Valid() {
		return domain.TenantScope{}, domain.ErrForbidden
	}
	return scope, nil
}
