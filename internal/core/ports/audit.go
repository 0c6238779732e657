package ports

import (
	"context"
	"time"

	"github.com/medora/clinic-core/internal/core/domain"
)

// AuditSink appends audit entries. Implementations never update or delete.
type AuditSink interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
}

// AuditReader lists audit entries inside a tenant scope, newest first.
type AuditReader interface {
	List(ctx context.Context, scope domain.TenantScope, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}

// AuditOutbox holds entries whose first write failed, until a drainer
// re-appends them.
type AuditOutbox interface {
	Push(ctx context.Context, entry *domain.AuditEntry) error
	// Pop blocks up to wait for an entry. It returns (nil, nil) on timeout.
	Pop(ctx context.Context, wait time.Duration) (*domain.AuditEntry, error)
	Len(ctx context.Context) (int64, error)
}
