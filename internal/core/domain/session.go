package domain

import "time"

// Session is a stored refresh token. Only the SHA-256 hash of the raw token is
// kept; one row is exactly one currently valid refresh token.
type Session struct {
	ID            string        `json:"id"`
	PrincipalID   string        `json:"principalId"`
	PrincipalKind PrincipalKind `json:"principalKind"`
	TokenHash     string        `json:"-"`
	IssuedAt      time.Time     `json:"issuedAt"`
	ExpiresAt     time.Time     `json:"expiresAt"`
}

// ExpiredAt reports whether the session is no longer usable at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// AccessClaims is the claim set carried by an access token. It is never
// persisted and is only trusted after the principal has been re-fetched.
type AccessClaims struct {
	SubjectID string
	TenantID  string
	Role      Role
	Kind      PrincipalKind
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenID   string
}

// TokenPurpose tags a one-time token.
type TokenPurpose string

const (
	PurposePasswordReset TokenPurpose = "password_reset"
	PurposeInvitation    TokenPurpose = "invitation"
)

// OneTimeToken authorises a password reset or an invitation acceptance. Used
// flips from false to true exactly once, together with the effect it authorises.
type OneTimeToken struct {
	ID        string
	TokenHash string
	Purpose   TokenPurpose

	// Password reset target.
	PrincipalID   string
	PrincipalKind PrincipalKind

	// Invitation payload.
	Email    string
	TenantID string
	Role     Role
	Name     string

	CreatedBy string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Invitation is the view of a pending invitation returned to the inviter.
type Invitation struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	TenantID  string    `json:"tenantId"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}
