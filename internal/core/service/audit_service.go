package service

import (
	"context"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

// AuditService lists the audit trail within the caller's tenant.
type AuditService struct {
	reader ports.AuditReader
	access AccessControl
}

var _ ports.AuditService = (*AuditService)(nil)

func NewAuditService(reader ports.AuditReader) *AuditService {
	return &AuditService{reader: reader, access: NewAccessControl()}
}

func (s *AuditService) List(ctx context.Context, actor domain.Principal, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	if err := s.access.Authorize(actor, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return nil, err
	}
	scope, err := s.access.Scope(actor)
	if err != nil {
		return nil, err
	}
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)
	return s.reader.List(ctx, scope, filter)
}
