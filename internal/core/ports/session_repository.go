package ports

import (
	"context"
	"time"

	"github.com/medora/clinic-core/internal/core/domain"
)

// SessionRepository persists hashed refresh tokens.
type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error

	// Rotate deletes the session whose hash is oldHash and inserts next for the
	// same principal, in one transaction. next.PrincipalID and next.PrincipalKind
	// are filled from the consumed row, which is returned.
	//
	// Missing rows yield domain.ErrInvalidRefreshToken. An expired row is
	// deleted, nothing is inserted and domain.ErrRefreshTokenExpired is returned.
	Rotate(ctx context.Context, oldHash string, next *domain.Session, now time.Time) (*domain.Session, error)

	// DeleteByHash removes one session. Missing rows are not an error.
	DeleteByHash(ctx context.Context, hash string) error
	DeleteByPrincipal(ctx context.Context, kind domain.PrincipalKind, principalID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
