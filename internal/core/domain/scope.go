package domain

// TenantScope restricts a repository call to one tenant. The zero value
// matches nothing; a scope can only be built from a Principal, so tenant ids
// never come from request parameters or ambient state.
type TenantScope struct {
	tenantID     string
	unrestricted bool
}

// ScopeOf returns the scope a principal is allowed to see.
func ScopeOf(p Principal) TenantScope {
	if p.IsSuperAdmin() {
		return TenantScope{unrestricted: true}
	}
	return TenantScope{tenantID: p.TenantID}
}

// TenantID returns the tenant filter. It is empty for unrestricted scopes.
func (s TenantScope) TenantID() string { return s.tenantID }

// Unrestricted reports whether the scope spans every tenant.
func (s TenantScope) Unrestricted() bool { return s.unrestricted }

// Valid reports whether the scope can match anything.
func (s TenantScope) Valid() bool { return s.unrestricted || s.tenantID != "" }

// Allows reports whether a row owned by tenantID is visible in the scope.
func (s TenantScope) Allows(tenantID string) bool {
	if s.unrestricted {
		return true
	}
	return s.tenantID != "" && s.tenantID == tenantID
}
