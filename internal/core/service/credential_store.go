package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medora/clinic-core/internal/api/metrics"
	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// LockoutPolicy configures the Active <-> Locked(until) state machine.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

func (p LockoutPolicy) withDefaults() LockoutPolicy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultLockoutThreshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultLockoutDuration
	}
	return p
}

// CredentialStore verifies email/password pairs and owns the lockout state.
type CredentialStore struct {
	repo   ports.CredentialRepository
	hasher *PasswordHasher
	policy LockoutPolicy
	now    func() time.Time
	log    zerolog.Logger
}

// NewCredentialStore returns a CredentialStore. Zero policy fields take the
// defaults (5 failures, 15 minutes).
func NewCredentialStore(repo ports.CredentialRepository, hasher *PasswordHasher, policy LockoutPolicy, log zerolog.Logger) *CredentialStore {
	return &CredentialStore{
		repo:   repo,
		hasher: hasher,
		policy: policy.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
		log:    log,
	}
}

// Verify checks the credentials and returns the stored account.
//
// Unknown accounts and wrong passwords both yield ErrInvalidCredentials. A
// locked account yields ErrAccountLocked before the password is looked at.
// The counter and lockout fields are persisted on every call that reaches
// the password comparison. Concurrent failures may under-count: there is no
// cross-request lock around the read-modify-write.
func (s *CredentialStore) Verify(ctx context.Context, in ports.LoginInput) (*domain.Account, error) {
	kind := in.Kind
	if kind == "" {
		kind = domain.KindStaff
	}

	acct, err := s.lookup(ctx, kind, in.TenantID, normalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.hasher.CompareDummy(in.Password)
			s.observe(kind, "invalid_credentials")
			return nil, domain.ErrInvalidCredentials
		}
		s.observe(kind, "error")
		return nil, fmt.Errorf("verify credentials: %w", err)
	}

	now := s.now()
	state := acct.LoginState()
	if state.LockedAt(now) {
		s.observe(kind, "locked")
		return nil, domain.ErrAccountLocked
	}

	if !s.hasher.Compare(acct.PasswordHash(), in.Password) {
		state.FailedLoginCount++
		if state.FailedLoginCount >= s.policy.Threshold {
			until := now.Add(s.policy.Duration)
			state.LockoutUntil = &until
			metrics.LockoutsTotal.WithLabelValues(string(kind)).Inc()
			s.log.Warn().
				Str("principal_id", acct.ID()).
				Str("kind", string(kind)).
				Int("failed_count", state.FailedLoginCount).
				Time("lockout_until", until).
				Msg("account locked")
		}
		if err := s.repo.UpdateLoginState(ctx, kind, acct.ID(), state, nil); err != nil {
			s.observe(kind, "error")
			return nil, fmt.Errorf("verify credentials: persist failure: %w", err)
		}
		s.observe(kind, "invalid_credentials")
		return nil, domain.ErrInvalidCredentials
	}

	var lastLogin *time.Time
	if kind == domain.KindPortal {
		lastLogin = &now
	}
	if err := s.repo.UpdateLoginState(ctx, kind, acct.ID(), domain.LoginState{}, lastLogin); err != nil {
		s.observe(kind, "error")
		return nil, fmt.Errorf("verify credentials: persist success: %w", err)
	}

	switch kind {
	case domain.KindPortal:
		if !acct.Portal.Active {
			s.observe(kind, "invalid_credentials")
			return nil, domain.ErrInvalidCredentials
		}
		acct.Portal.LastLoginAt = lastLogin
		acct.Portal.LoginState = domain.LoginState{}
	default:
		if !acct.Staff.Verified {
			s.observe(kind, "not_verified")
			return nil, domain.ErrEmailNotVerified
		}
		acct.Staff.LoginState = domain.LoginState{}
	}

	s.observe(kind, "success")
	return acct, nil
}

func (s *CredentialStore) lookup(ctx context.Context, kind domain.PrincipalKind, tenantID, email string) (*domain.Account, error) {
	if email == "" {
		return nil, domain.ErrNotFound
	}
	switch kind {
	case domain.KindStaff:
		staff, err := s.repo.FindStaffByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		return &domain.Account{Kind: domain.KindStaff, Staff: staff}, nil
	case domain.KindPortal:
		if strings.TrimSpace(tenantID) == "" {
			return nil, domain.ErrNotFound
		}
		portal, err := s.repo.FindPortalByEmail(ctx, tenantID, email)
		if err != nil {
			return nil, err
		}
		return &domain.Account{Kind: domain.KindPortal, Portal: portal}, nil
	default:
		return nil, domain.ErrNotFound
	}
}

func (s *CredentialStore) observe(kind domain.PrincipalKind, outcome string) {
	metrics.LoginAttemptsTotal.WithLabelValues(string(kind), outcome).Inc()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
