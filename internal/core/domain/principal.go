package domain

import (
	"strings"
	"time"
)

// Role is the closed set of authorisation tiers. Adding a value here must be
// mirrored in Valid, AllRoles and every RequireRoles call site.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleDoctor     Role = "doctor"
	RoleNurse      Role = "nurse"
	RoleReception  Role = "reception"
	RoleLab        Role = "lab"
	RoleBilling    Role = "billing"
	RolePharmacist Role = "pharmacist"

	// RolePatient is the virtual role carried by every portal user.
	RolePatient Role = "patient"

	// RoleSuperAdmin is tenant-less and bypasses role checks and tenant scoping.
	RoleSuperAdmin Role = "super_admin"
)

// AllRoles lists every Role value.
var AllRoles = []Role{
	RoleOwner, RoleAdmin, RoleDoctor, RoleNurse, RoleReception,
	RoleLab, RoleBilling, RolePharmacist, RolePatient, RoleSuperAdmin,
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleDoctor, RoleNurse, RoleReception,
		RoleLab, RoleBilling, RolePharmacist, RolePatient, RoleSuperAdmin:
		return true
	}
	return false
}

// IsStaffRole reports whether r can be held by a clinic staff account, i.e. it
// is tenant-bound and not the portal role.
func (r Role) IsStaffRole() bool {
	return r.Valid() && r != RolePatient && r != RoleSuperAdmin
}

// ParseRole normalises s and returns the matching Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// PrincipalKind distinguishes the two account tables.
type PrincipalKind string

const (
	KindStaff  PrincipalKind = "staff"
	KindPortal PrincipalKind = "portal"
)

// Valid reports whether k is a known kind.
func (k PrincipalKind) Valid() bool {
	return k == KindStaff || k == KindPortal
}

// LoginState is the lockout-relevant part of an account.
type LoginState struct {
	FailedLoginCount int
	LockoutUntil     *time.Time
}

// LockedAt reports whether the account is locked at instant now.
func (s LoginState) LockedAt(now time.Time) bool {
	return s.LockoutUntil != nil && s.LockoutUntil.After(now)
}

// StaffPrincipal is a clinic employee account. Email is globally unique.
type StaffPrincipal struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenantId,omitempty"`
	Role         Role       `json:"role"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Verified     bool       `json:"verified"`
	LoginState   LoginState `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// PortalPrincipal is a patient-portal account. Email is unique within a tenant.
type PortalPrincipal struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenantId"`
	LinkedPatientID string     `json:"patientId"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	Active          bool       `json:"active"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	LoginState      LoginState `json:"-"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Account is the stored form of either principal kind as the credential
// store sees it.
type Account struct {
	Kind   PrincipalKind
	Staff  *StaffPrincipal
	Portal *PortalPrincipal
}

// ID returns the account id.
func (a *Account) ID() string {
	if a.Kind == KindPortal {
		return a.Portal.ID
	}
	return a.Staff.ID
}

// PasswordHash returns the stored hash.
func (a *Account) PasswordHash() string {
	if a.Kind == KindPortal {
		return a.Portal.PasswordHash
	}
	return a.Staff.PasswordHash
}

// LoginState returns the stored lockout state.
func (a *Account) LoginState() LoginState {
	if a.Kind == KindPortal {
		return a.Portal.LoginState
	}
	return a.Staff.LoginState
}

// Principal builds the request identity from the stored account.
func (a *Account) Principal() Principal {
	if a.Kind == KindPortal {
		return Principal{
			ID:        a.Portal.ID,
			Kind:      KindPortal,
			TenantID:  a.Portal.TenantID,
			Role:      RolePatient,
			Email:     a.Portal.Email,
			PatientID: a.Portal.LinkedPatientID,
		}
	}
	p := Principal{
		ID:       a.Staff.ID,
		Kind:     KindStaff,
		TenantID: a.Staff.TenantID,
		Role:     a.Staff.Role,
		Email:    a.Staff.Email,
		Name:     a.Staff.Name,
	}
	if p.Role == RoleSuperAdmin {
		p.TenantID = ""
	}
	return p
}

// Principal is the authenticated identity attached to a request. It is passed
// explicitly into every collaborator call.
type Principal struct {
	ID        string        `json:"id"`
	Kind      PrincipalKind `json:"kind"`
	TenantID  string        `json:"tenantId,omitempty"`
	Role      Role          `json:"role"`
	Email     string        `json:"email"`
	Name      string        `json:"name,omitempty"`
	PatientID string        `json:"patientId,omitempty"`
}

// IsSuperAdmin reports whether p bypasses role checks and tenant scoping.
func (p Principal) IsSuperAdmin() bool {
	return p.Role == RoleSuperAdmin
}
