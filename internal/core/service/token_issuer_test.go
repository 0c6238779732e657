package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medora/clinic-core/internal/core/domain"
)

func newTestIssuer(t *testing.T, now time.Time) *TokenIssuer {
	t.Helper()
	iss, err := NewTokenIssuer(testSecret, "test", 0)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	iss.now = func() time.Time { return now }
	return iss
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	iss := newTestIssuer(t, now)
	p := domain.Principal{ID: "s1", Kind: domain.KindStaff, TenantID: "t1", Role: domain.RoleDoctor}

	token, claims, err := iss.Issue(p)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt) != 15*time.Minute {
		t.Fatalf("expected 15 minute lifetime, got %v", claims.ExpiresAt.Sub(claims.IssuedAt))
	}

	iss.now = func() time.Time { return now.Add(14 * time.Minute) }
	got, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.SubjectID != "s1" || got.TenantID != "t1" || got.Role != domain.RoleDoctor || got.Kind != domain.KindStaff {
		t.Fatalf("unexpected claims: %+v", got)
	}
	if got.TokenID == "" || got.TokenID != claims.TokenID {
		t.Fatalf("jti mismatch: %q vs %q", got.TokenID, claims.TokenID)
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	iss := newTestIssuer(t, now)
	token, _, err := iss.Issue(domain.Principal{ID: "s1", Kind: domain.KindStaff, TenantID: "t1", Role: domain.RoleDoctor})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	iss.now = func() time.Time { return now.Add(16 * time.Minute) }
	if _, err := iss.Verify(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenIssuer_RejectsForeignTokens(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(t, now)

	other, err := NewTokenIssuer("ffffffffffffffffffffffffffffffff", "test", 0)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	forged, _, _ := other.Issue(domain.Principal{ID: "s1", Kind: domain.KindStaff, Role: domain.RoleOwner, TenantID: "t1"})

	wrongIssuer, _ := NewTokenIssuer(testSecret, "someone-else", 0)
	foreign, _, _ := wrongIssuer.Issue(domain.Principal{ID: "s1", Kind: domain.KindStaff, Role: domain.RoleOwner, TenantID: "t1"})

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"id": "s1", "sub": "s1", "role": "owner", "kind": "staff", "iss": "test",
		"exp": now.Add(time.Hour).Unix(), "iat": now.Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	badRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id": "s1", "sub": "s1", "role": "root", "kind": "staff", "iss": "test",
		"exp": now.Add(time.Hour).Unix(), "iat": now.Unix(),
	}).SignedString([]byte(testSecret))

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": forged,
		"wrong issuer": foreign,
		"alg none":     unsigned,
		"unknown role": badRole,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := iss.Verify(tok); !errors.Is(err, domain.ErrTokenInvalid) {
				t.Fatalf("expected ErrTokenInvalid, got %v", err)
			}
		})
	}
}

func TestNewTokenIssuer_WeakSecret(t *testing.T) {
	if _, err := NewTokenIssuer("short", "", 0); err == nil {
		t.Fatalf("expected error for short secret")
	}
}
