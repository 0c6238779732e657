package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medora/clinic-core/internal/api/metrics"
	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
	"github.com/medora/clinic-core/internal/pkg/ids"
)

const (
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	// 32 bytes = 256 bits of entropy per opaque token.
	opaqueTokenBytes = 32
)

// HashToken returns the hex SHA-256 of a raw opaque token. Raw tokens are
// never stored.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewOpaqueToken returns a URL-safe random token.
func NewOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SessionStore manages refresh sessions: creation, single-use rotation and
// revocation.
type SessionStore struct {
	repo ports.SessionRepository
	ttl  time.Duration
	now  func() time.Time
	log  zerolog.Logger
}

// NewSessionStore returns a SessionStore. A non-positive ttl means 30 days.
func NewSessionStore(repo ports.SessionRepository, ttl time.Duration, log zerolog.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	return &SessionStore{
		repo: repo,
		ttl:  ttl,
		now:  func() time.Time { return time.Now().UTC() },
		log:  log,
	}
}

// TTL returns the refresh session lifetime.
func (s *SessionStore) TTL() time.Duration { return s.ttl }

// Create starts a session for p and returns the raw token.
func (s *SessionStore) Create(ctx context.Context, p domain.Principal) (string, *domain.Session, error) {
	raw, sess, err := s.newSession()
	if err != nil {
		return "", nil, err
	}
	sess.PrincipalID = p.ID
	sess.PrincipalKind = p.Kind

	if err := s.repo.Create(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}
	return raw, sess, nil
}

// Rotate redeems raw and returns its replacement. The old token is unusable
// afterwards; of several concurrent rotations of the same token at most one
// succeeds, the others get ErrInvalidRefreshToken.
func (s *SessionStore) Rotate(ctx context.Context, raw string) (string, *domain.Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		metrics.RefreshRotationsTotal.WithLabelValues("invalid").Inc()
		return "", nil, domain.ErrInvalidRefreshToken
	}

	newRaw, next, err := s.newSession()
	if err != nil {
		return "", nil, err
	}

	old, err := s.repo.Rotate(ctx, HashToken(raw), next, next.IssuedAt)
	switch {
	case errors.Is(err, domain.ErrRefreshTokenExpired):
		metrics.RefreshRotationsTotal.WithLabelValues("expired").Inc()
		return "", nil, err
	case errors.Is(err, domain.ErrInvalidRefreshToken):
		metrics.RefreshRotationsTotal.WithLabelValues("invalid").Inc()
		return "", nil, err
	case err != nil:
		metrics.RefreshRotationsTotal.WithLabelValues("error").Inc()
		return "", nil, fmt.Errorf("rotate session: %w", err)
	}

	metrics.RefreshRotationsTotal.WithLabelValues("success").Inc()
	s.log.Debug().
		Str("old_session", old.ID).
		Str("new_session", next.ID).
		Str("principal_id", next.PrincipalID).
		Msg("refresh session rotated")
	return newRaw, next, nil
}

// Revoke deletes the session of raw. Unknown or already revoked tokens are
// not an error.
func (s *SessionStore) Revoke(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if err := s.repo.DeleteByHash(ctx, HashToken(raw)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAll deletes every session of a principal.
func (s *SessionStore) RevokeAll(ctx context.Context, kind domain.PrincipalKind, principalID string) (int64, error) {
	n, err := s.repo.DeleteByPrincipal(ctx, kind, principalID)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	return n, nil
}

// PurgeExpired removes sessions past their expiry.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	metrics.SessionsPurgedTotal.Add(float64(n))
	return n, nil
}

func (s *SessionStore) newSession() (string, *domain.Session, error) {
	raw, err := NewOpaqueToken()
	if err != nil {
		return "", nil, err
	}
	now := s.now()
	return raw, &domain.Session{
		ID:        ids.New(),
		TokenHash: HashToken(raw),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}, nil
}
