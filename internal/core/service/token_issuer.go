package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medora/clinic-core/internal/core/domain"
)

const (
	DefaultAccessTokenTTL = 15 * time.Minute
	DefaultTokenIssuer    = "clinic-core"
	minSecretLength       = 32
)

var errWeakSecret = fmt.Errorf("jwt secret must be at least %d bytes", minSecretLength)

// accessClaims is the wire form of domain.AccessClaims.
type accessClaims struct {
	UserID   string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`
	Role     string `json:"role"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies short-lived HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns a TokenIssuer. The secret comes from configuration
// and must be at least 32 bytes.
func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < minSecretLength {
		return nil, errWeakSecret
	}
	if issuer == "" {
		issuer = DefaultTokenIssuer
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL returns the access token lifetime.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue signs a token for p.
func (t *TokenIssuer) Issue(p domain.Principal) (string, domain.AccessClaims, error) {
	now := t.now().UTC().Truncate(time.Second)
	claims := domain.AccessClaims{
		SubjectID: p.ID,
		TenantID:  p.TenantID,
		Role:      p.Role,
		Kind:      p.Kind,
		IssuedAt:  now,
		ExpiresAt: now.Add(t.ttl),
		TokenID:   uuid.NewString(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		UserID:   claims.SubjectID,
		TenantID: claims.TenantID,
		Role:     string(claims.Role),
		Kind:     string(claims.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   claims.SubjectID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			ID:        claims.TokenID,
		},
	})
	signed, err := tok.SignedString(t.secret)
	if err != nil {
		return "", domain.AccessClaims{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature, issuer and expiry. It returns ErrTokenExpired for
// an otherwise valid but expired token and ErrTokenInvalid for anything else.
func (t *TokenIssuer) Verify(token string) (*domain.AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}

	var wire accessClaims
	parsed, err := jwt.ParseWithClaims(token, &wire, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, domain.ErrTokenInvalid
	}

	kind := domain.PrincipalKind(wire.Kind)
	role := domain.Role(wire.Role)
	if wire.UserID == "" || wire.UserID != wire.Subject || !kind.Valid() || !role.Valid() {
		return nil, domain.ErrTokenInvalid
	}

	return &domain.AccessClaims{
		SubjectID: wire.UserID,
		TenantID:  wire.TenantID,
		Role:      role,
		Kind:      kind,
		IssuedAt:  wire.IssuedAt.Time,
		ExpiresAt: wire.ExpiresAt.Time,
		TokenID:   wire.ID,
	}, nil
}
