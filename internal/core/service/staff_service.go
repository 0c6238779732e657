package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// StaffService is the tenant-scoped staff directory.
type StaffService struct {
	repo   ports.StaffRepository
	access AccessControl
	log    zerolog.Logger
}

var _ ports.StaffService = (*StaffService)(nil)

func NewStaffService(repo ports.StaffRepository, log zerolog.Logger) *StaffService {
	return &StaffService{repo: repo, access: NewAccessControl(), log: log}
}

func (s *StaffService) List(ctx context.Context, actor domain.Principal, filter ports.StaffFilter) ([]*domain.StaffPrincipal, error) {
	scope, err := s.gate(actor, domain.RoleOwner, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)
	return s.repo.List(ctx, scope, filter)
}

// Get returns domain.ErrNotFound for staff of another tenant.
func (s *StaffService) Get(ctx context.Context, actor domain.Principal, id string) (*domain.StaffPrincipal, error) {
	scope, err := s.gate(actor, domain.RoleOwner, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, scope, id)
}

// ChangeRole is restricted to owners. Nobody changes their own role, and the
// portal and super_admin roles cannot be assigned.
func (s *StaffService) ChangeRole(ctx context.Context, actor domain.Principal, id string, role domain.Role) (*domain.StaffPrincipal, error) {
	scope, err := s.gate(actor, domain.RoleOwner)
	if err != nil {
		return nil, err
	}
	if !role.IsStaffRole() {
		return nil, domain.ErrInvalidRole
	}
	if id == actor.ID {
		return nil, domain.NewValidationError("you cannot change your own role")
	}

	updated, err := s.repo.UpdateRole(ctx, scope, id, role)
	if err != nil {
		return nil, fmt.Errorf("change role: %w", err)
	}
	s.log.Info().
		Str("actor_id", actor.ID).
		Str("staff_id", updated.ID).
		Str("role", string(role)).
		Msg("staff role changed")
	return updated, nil
}

func (s *StaffService) gate(actor domain.Principal, roles ...domain.Role) (domain.TenantScope, error) {
	if err := s.access.Authorize(actor, roles...); err != nil {
		return domain.TenantScope{}, err
	}
	if actor.Kind != domain.KindStaff {
		return domain.TenantScope{}, domain.ErrForbidden
	}
	return s.access.Scope(actor)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
