package ports

import (
	"context"

	"github.com/medora/clinic-core/internal/core/domain"
)

// Mailer delivers the one-time-token emails. Delivery itself is an external
// collaborator.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
	SendInvitation(ctx context.Context, to, link string, role domain.Role) error
}
