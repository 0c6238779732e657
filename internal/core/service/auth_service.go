package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
	"github.com/medora/clinic-core/internal/pkg/ids"
)

const (
	DefaultResetTokenTTL  = time.Hour
	DefaultInviteTokenTTL = 7 * 24 * time.Hour
)

// AuthConfig holds the gateway settings that are not collaborators.
type AuthConfig struct {
	// BaseURL is the web client origin used in emailed links.
	BaseURL   string
	ResetTTL  time.Duration
	InviteTTL time.Duration
}

// AuthDeps are the collaborators of AuthService.
type AuthDeps struct {
	Credentials *CredentialStore
	Tokens      *TokenIssuer
	Sessions    *SessionStore
	Accounts    ports.CredentialRepository
	OneTime     ports.OneTimeTokenRepository
	Hasher      *PasswordHasher
	Mailer      ports.Mailer
}

// AuthService orchestrates the login, refresh and one-time-token flows.
type AuthService struct {
	cfg      AuthConfig
	creds    *CredentialStore
	tokens   *TokenIssuer
	sessions *SessionStore
	accounts ports.CredentialRepository
	oneTime  ports.OneTimeTokenRepository
	hasher   *PasswordHasher
	mailer   ports.Mailer
	access   AccessControl
	now      func() time.Time
	log      zerolog.Logger
}

var _ ports.AuthService = (*AuthService)(nil)

func NewAuthService(cfg AuthConfig, deps AuthDeps, log zerolog.Logger) *AuthService {
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTokenTTL
	}
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = DefaultInviteTokenTTL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &AuthService{
		cfg:      cfg,
		creds:    deps.Credentials,
		tokens:   deps.Tokens,
		sessions: deps.Sessions,
		accounts: deps.Accounts,
		oneTime:  deps.OneTime,
		hasher:   deps.Hasher,
		mailer:   deps.Mailer,
		access:   NewAccessControl(),
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

func (s *AuthService) Login(ctx context.Context, in ports.LoginInput) (*ports.AuthResult, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	acct, err := s.creds.Verify(ctx, in)
	if err != nil {
		return nil, err
	}

	p := acct.Principal()
	res, err := s.issue(ctx, p)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("principal_id", p.ID).Str("kind", string(p.Kind)).Str("tenant_id", p.TenantID).Msg("login succeeded")
	return res, nil
}

// Refresh rotates the refresh token and issues an access token for the live
// principal behind the session. A principal that was deleted or deactivated
// since login loses the freshly rotated session as well.
func (s *AuthService) Refresh(ctx context.Context, rawRefreshToken string) (*ports.AuthResult, error) {
	newRaw, sess, err := s.sessions.Rotate(ctx, rawRefreshToken)
	if err != nil {
		return nil, err
	}

	acct, err := s.liveAccount(ctx, sess.PrincipalKind, sess.PrincipalID)
	if err != nil {
		if revokeErr := s.sessions.Revoke(ctx, newRaw); revokeErr != nil {
			s.log.Error().Err(revokeErr).Str("session_id", sess.ID).Msg("revoke session of unusable principal")
		}
		if errors.Is(err, domain.ErrTokenInvalid) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, err
	}

	p := acct.Principal()
	token, claims, err := s.tokens.Issue(p)
	if err != nil {
		return nil, err
	}
	return &ports.AuthResult{
		Principal:        p,
		AccessToken:      token,
		AccessExpiresAt:  claims.ExpiresAt,
		RefreshToken:     newRaw,
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

// Logout is idempotent on unknown or already revoked tokens.
func (s *AuthService) Logout(ctx context.Context, rawRefreshToken string) error {
	return s.sessions.Revoke(ctx, rawRefreshToken)
}

// Authenticate verifies the access token and re-fetches the principal, so
// deactivation and role changes take effect before the token expires.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (domain.Principal, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return domain.Principal{}, err
	}

	acct, err := s.liveAccount(ctx, claims.Kind, claims.SubjectID)
	if err != nil {
		return domain.Principal{}, err
	}
	return acct.Principal(), nil
}

// RequestPasswordReset never reports whether the account exists. Failures
// are logged only.
func (s *AuthService) RequestPasswordReset(ctx context.Context, in ports.PasswordResetInput) error {
	email := normalizeEmail(in.Email)
	kind := in.Kind
	if kind == "" {
		kind = domain.KindStaff
	}

	acct, err := s.findByEmail(ctx, kind, in.TenantID, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Error().Err(err).Str("kind", string(kind)).Msg("password reset lookup failed")
		}
		return nil
	}
	if kind == domain.KindPortal && !acct.Portal.Active {
		return nil
	}

	raw, err := NewOpaqueToken()
	if err != nil {
		s.log.Error().Err(err).Msg("password reset token generation failed")
		return nil
	}
	now := s.now()
	p := acct.Principal()
	tok := &domain.OneTimeToken{
		ID:            ids.New(),
		TokenHash:     HashToken(raw),
		Purpose:       domain.PurposePasswordReset,
		PrincipalID:   p.ID,
		PrincipalKind: kind,
		Email:         p.Email,
		TenantID:      p.TenantID,
		ExpiresAt:     now.Add(s.cfg.ResetTTL),
		CreatedAt:     now,
	}
	if err := s.oneTime.Create(ctx, tok); err != nil {
		s.log.Error().Err(err).Str("principal_id", p.ID).Msg("password reset token store failed")
		return nil
	}
	if err := s.mailer.SendPasswordReset(ctx, p.Email, s.link("/reset-password", raw)); err != nil {
		s.log.Error().Err(err).Str("principal_id", p.ID).Msg("password reset email failed")
	}
	return nil
}

// ResetPassword consumes the token, stores the new hash, clears the lockout
// and revokes every session of the principal in one transaction.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return domain.ErrInvalidOneTimeToken
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	kind, id, err := s.oneTime.ConsumePasswordReset(ctx, HashToken(token), hash, s.now())
	if err != nil {
		return err
	}
	s.log.Info().Str("principal_id", id).Str("kind", string(kind)).Msg("password reset completed; sessions revoked")
	return nil
}

// ChangePassword requires the current password and revokes every session of
// the principal, including the caller's.
func (s *AuthService) ChangePassword(ctx context.Context, actor domain.Principal, currentPassword, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	if currentPassword == newPassword {
		return domain.NewValidationError("new password must differ from the current one")
	}

	acct, err := s.liveAccount(ctx, actor.Kind, actor.ID)
	if err != nil {
		return err
	}
	if !s.hasher.Compare(acct.PasswordHash(), currentPassword) {
		return domain.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if err := s.accounts.ChangePassword(ctx, actor.Kind, actor.ID, hash); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	s.log.Info().Str("principal_id", actor.ID).Msg("password changed; sessions revoked")
	return nil
}

// AcceptInvitation creates the invited staff account and marks the
// invitation used in one transaction.
func (s *AuthService) AcceptInvitation(ctx context.Context, in ports.AcceptInvitationInput) (*domain.StaffPrincipal, error) {
	if strings.TrimSpace(in.Token) == "" {
		return nil, domain.ErrInvalidOneTimeToken
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.NewValidationError("name is required")
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}

	now := s.now()
	staff, err := s.oneTime.ConsumeInvitation(ctx, HashToken(in.Token), &domain.StaffPrincipal{
		ID:           ids.New(),
		Name:         name,
		PasswordHash: hash,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, now)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("staff_id", staff.ID).Str("tenant_id", staff.TenantID).Str("role", string(staff.Role)).Msg("invitation accepted")
	return staff, nil
}

// Invite stores an invitation token and emails the link. Owners may invite
// any tenant role; admins may invite anything but owner.
func (s *AuthService) Invite(ctx context.Context, actor domain.Principal, in ports.InviteInput) (*domain.Invitation, error) {
	if err := s.access.Authorize(actor, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if !in.Role.IsStaffRole() {
		return nil, domain.ErrInvalidRole
	}
	if actor.Role == domain.RoleAdmin && in.Role == domain.RoleOwner {
		return nil, domain.ErrForbidden
	}

	tenantID := actor.TenantID
	if actor.IsSuperAdmin() {
		tenantID = strings.TrimSpace(in.TenantID)
	}
	if tenantID == "" {
		return nil, domain.NewValidationError("tenantId is required")
	}

	email := normalizeEmail(in.Email)
	if !strings.Contains(email, "@") {
		return nil, domain.NewValidationError("a valid email is required")
	}
	if _, err := s.accounts.FindStaffByEmail(ctx, email); err == nil {
		return nil, domain.ErrConflict
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("invite: %w", err)
	}

	raw, err := NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	tok := &domain.OneTimeToken{
		ID:        ids.New(),
		TokenHash: HashToken(raw),
		Purpose:   domain.PurposeInvitation,
		Email:     email,
		TenantID:  tenantID,
		Role:      in.Role,
		Name:      strings.TrimSpace(in.Name),
		CreatedBy: actor.ID,
		ExpiresAt: now.Add(s.cfg.InviteTTL),
		CreatedAt: now,
	}
	if err := s.oneTime.Create(ctx, tok); err != nil {
		return nil, fmt.Errorf("invite: %w", err)
	}
	if err := s.mailer.SendInvitation(ctx, email, s.link("/accept-invite", raw), in.Role); err != nil {
		s.log.Error().Err(err).Str("invitation_id", tok.ID).Msg("invitation email failed")
	}

	return &domain.Invitation{
		ID:        tok.ID,
		Email:     tok.Email,
		TenantID:  tok.TenantID,
		Role:      tok.Role,
		ExpiresAt: tok.ExpiresAt,
	}, nil
}

func (s *AuthService) issue(ctx context.Context, p domain.Principal) (*ports.AuthResult, error) {
	token, claims, err := s.tokens.Issue(p)
	if err != nil {
		return nil, err
	}
	raw, sess, err := s.sessions.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	return &ports.AuthResult{
		Principal:        p,
		AccessToken:      token,
		AccessExpiresAt:  claims.ExpiresAt,
		RefreshToken:     raw,
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

// liveAccount loads the account behind a token subject. Missing, inactive
// and unverified accounts yield ErrTokenInvalid.
func (s *AuthService) liveAccount(ctx context.Context, kind domain.PrincipalKind, id string) (*domain.Account, error) {
	if !kind.Valid() || id == "" {
		return nil, domain.ErrTokenInvalid
	}
	acct, err := s.accounts.FindAccount(ctx, kind, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("load principal: %w", err)
	}
	switch kind {
	case domain.KindPortal:
		if acct.Portal == nil || !acct.Portal.Active {
			return nil, domain.ErrTokenInvalid
		}
	default:
		if acct.Staff == nil || !acct.Staff.Verified {
			return nil, domain.ErrTokenInvalid
		}
	}
	return acct, nil
}

func (s *AuthService) findByEmail(ctx context.Context, kind domain.PrincipalKind, tenantID, email string) (*domain.Account, error) {
	if email == "" {
		return nil, domain.ErrNotFound
	}
	if kind == domain.KindPortal {
		if tenantID == "" {
			return nil, domain.ErrNotFound
		}
		portal, err := s.accounts.FindPortalByEmail(ctx, tenantID, email)
		if err != nil {
			return nil, err
		}
		return &domain.Account{Kind: domain.KindPortal, Portal: portal}, nil
	}
	staff, err := s.accounts.FindStaffByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return &domain.Account{Kind: domain.KindStaff, Staff: staff}, nil
}

func (s *AuthService) link(path, raw string) string {
	return s.cfg.BaseURL + path + "?token=" + url.QueryEscape(raw)
}
