package ports

import (
	"context"
	"time"

	"github.com/medora/clinic-core/internal/core/domain"
)

// OneTimeTokenRepository stores reset and invitation tokens by hash. The
// Consume methods flip the used flag in the same transaction as the effect
// the token authorises and return domain.ErrInvalidOneTimeToken when the
// token is unknown, used, expired or of another purpose.
type OneTimeTokenRepository interface {
	Create(ctx context.Context, t *domain.OneTimeToken) error

	// ConsumePasswordReset marks the token used, stores passwordHash, clears
	// the lockout and deletes every session of the target principal.
	ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (domain.PrincipalKind, string, error)

	// ConsumeInvitation marks the invitation used and inserts staff with the
	// invited email, tenant and role. A duplicate email rolls everything back
	// and returns domain.ErrConflict.
	ConsumeInvitation(ctx context.Context, tokenHash string, staff *domain.StaffPrincipal, now time.Time) (*domain.StaffPrincipal, error)
}
