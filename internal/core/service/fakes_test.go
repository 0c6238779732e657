package service

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeAccounts keeps staff and portal accounts in memory.
type fakeAccounts struct {
	mu       sync.Mutex
	staff    map[string]*domain.StaffPrincipal
	portal   map[string]*domain.PortalPrincipal
	sessions *fakeSessions
	fail     error
}

func newFakeAccounts(sessions *fakeSessions) *fakeAccounts {
	return &fakeAccounts{
		staff:    make(map[string]*domain.StaffPrincipal),
		portal:   make(map[string]*domain.PortalPrincipal),
		sessions: sessions,
	}
}

func (r *fakeAccounts) FindStaffByEmail(_ context.Context, email string) (*domain.StaffPrincipal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	for _, s := range r.staff {
		if s.Email == email {
			c := *s
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeAccounts) FindPortalByEmail(_ context.Context, tenantID, email string) (*domain.PortalPrincipal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.portal {
		if p.TenantID == tenantID && p.Email == email {
			c := *p
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeAccounts) FindAccount(_ context.Context, kind domain.PrincipalKind, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch kind {
	case domain.KindStaff:
		if s, ok := r.staff[id]; ok {
			c := *s
			return &domain.Account{Kind: kind, Staff: &c}, nil
		}
	case domain.KindPortal:
		if p, ok := r.portal[id]; ok {
			c := *p
			return &domain.Account{Kind: kind, Portal: &c}, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeAccounts) UpdateLoginState(_ context.Context, kind domain.PrincipalKind, id string, state domain.LoginState, lastLoginAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind == domain.KindPortal {
		p, ok := r.portal[id]
		if !ok {
			return domain.ErrNotFound
		}
		p.LoginState = state
		if lastLoginAt != nil {
			p.LastLoginAt = lastLoginAt
		}
		return nil
	}
	s, ok := r.staff[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.LoginState = state
	return nil
}

func (r *fakeAccounts) ChangePassword(ctx context.Context, kind domain.PrincipalKind, id, hash string) error {
	r.mu.Lock()
	switch kind {
	case domain.KindPortal:
		p, ok := r.portal[id]
		if !ok {
			r.mu.Unlock()
			return domain.ErrNotFound
		}
		p.PasswordHash, p.LoginState = hash, domain.LoginState{}
	default:
		s, ok := r.staff[id]
		if !ok {
			r.mu.Unlock()
			return domain.ErrNotFound
		}
		s.PasswordHash, s.LoginState = hash, domain.LoginState{}
	}
	r.mu.Unlock()
	_, err := r.sessions.DeleteByPrincipal(ctx, kind, id)
	return err
}

func (r *fakeAccounts) staffState(id string) domain.LoginState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staff[id].LoginState
}

// Staff directory methods, used by StaffService tests.

func (r *fakeAccounts) List(_ context.Context, scope domain.TenantScope, filter ports.StaffFilter) ([]*domain.StaffPrincipal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StaffPrincipal
	for _, s := range r.staff {
		if !scope.Allows(s.TenantID) || (filter.Role != "" && s.Role != filter.Role) {
			continue
		}
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeAccounts) Get(_ context.Context, scope domain.TenantScope, id string) (*domain.StaffPrincipal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.staff[id]
	if !ok || !scope.Allows(s.TenantID) {
		return nil, domain.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (r *fakeAccounts) UpdateRole(_ context.Context, scope domain.TenantScope, id string, role domain.Role) (*domain.StaffPrincipal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.staff[id]
	if !ok || !scope.Allows(s.TenantID) {
		return nil, domain.ErrNotFound
	}
	s.Role = role
	c := *s
	return &c, nil
}

// fakeSessions serialises Rotate on a mutex, as the row lock does in SQL.
type fakeSessions struct {
	mu   sync.Mutex
	rows map[string]*domain.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: make(map[string]*domain.Session)}
}

func (r *fakeSessions) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.rows[s.TokenHash]; dup {
		return domain.ErrConflict
	}
	c := *s
	r.rows[s.TokenHash] = &c
	return nil
}

func (r *fakeSessions) Rotate(_ context.Context, oldHash string, next *domain.Session, now time.Time) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.rows[oldHash]
	if !ok {
		return nil, domain.ErrInvalidRefreshToken
	}
	delete(r.rows, oldHash)
	if old.ExpiredAt(now) {
		return nil, domain.ErrRefreshTokenExpired
	}
	next.PrincipalID, next.PrincipalKind = old.PrincipalID, old.PrincipalKind
	c := *next
	r.rows[next.TokenHash] = &c
	return old, nil
}

func (r *fakeSessions) DeleteByHash(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, hash)
	return nil
}

func (r *fakeSessions) DeleteByPrincipal(_ context.Context, kind domain.PrincipalKind, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, s := range r.rows {
		if s.PrincipalKind == kind && s.PrincipalID == id {
			delete(r.rows, h)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, s := range r.rows {
		if s.ExpiredAt(now) {
			delete(r.rows, h)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessions) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// fakeOneTime applies the token effects against fakeAccounts under one lock.
type fakeOneTime struct {
	mu       sync.Mutex
	rows     map[string]*domain.OneTimeToken
	accounts *fakeAccounts
}

func newFakeOneTime(accounts *fakeAccounts) *fakeOneTime {
	return &fakeOneTime{rows: make(map[string]*domain.OneTimeToken), accounts: accounts}
}

func (r *fakeOneTime) Create(_ context.Context, t *domain.OneTimeToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *t
	r.rows[t.TokenHash] = &c
	return nil
}

func (r *fakeOneTime) usable(hash string, purpose domain.TokenPurpose, now time.Time) (*domain.OneTimeToken, error) {
	t, ok := r.rows[hash]
	if !ok || t.Used || t.Purpose != purpose || !t.ExpiresAt.After(now) {
		return nil, domain.ErrInvalidOneTimeToken
	}
	return t, nil
}

func (r *fakeOneTime) ConsumePasswordReset(ctx context.Context, hash, passwordHash string, now time.Time) (domain.PrincipalKind, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.usable(hash, domain.PurposePasswordReset, now)
	if err != nil {
		return "", "", err
	}
	if err := r.accounts.ChangePassword(ctx, t.PrincipalKind, t.PrincipalID, passwordHash); err != nil {
		return "", "", err
	}
	t.Used = true
	return t.PrincipalKind, t.PrincipalID, nil
}

func (r *fakeOneTime) ConsumeInvitation(ctx context.Context, hash string, staff *domain.StaffPrincipal, now time.Time) (*domain.StaffPrincipal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.usable(hash, domain.PurposeInvitation, now)
	if err != nil {
		return nil, err
	}
	if _, err := r.accounts.FindStaffByEmail(ctx, t.Email); err == nil {
		return nil, domain.ErrConflict
	}
	c := *staff
	c.Email, c.TenantID, c.Role = t.Email, t.TenantID, t.Role
	if c.Name == "" {
		c.Name = t.Name
	}
	r.accounts.mu.Lock()
	r.accounts.staff[c.ID] = &c
	r.accounts.mu.Unlock()
	t.Used = true
	out := c
	return &out, nil
}

type sentMail struct {
	to, link string
	role     domain.Role
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, link: link})
	return nil
}

func (m *fakeMailer) SendInvitation(_ context.Context, to, link string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, link: link, role: role})
	return nil
}

func (m *fakeMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	u, err := url.Parse(m.sent[len(m.sent)-1].link)
	if err != nil {
		t.Fatalf("bad link: %v", err)
	}
	return u.Query().Get("token")
}

type fakeSink struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
	fail    error
}

func (s *fakeSink) Append(_ context.Context, e *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeSink) List(_ context.Context, scope domain.TenantScope, _ domain.AuditFilter) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if scope.Allows(e.TenantID) {
			out = append(out, *e)
		}
	}
	return out, nil
}

type fakeOutbox struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
	fail    error
}

func (o *fakeOutbox) Push(_ context.Context, e *domain.AuditEntry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.entries = append(o.entries, e)
	return nil
}

func (o *fakeOutbox) Pop(_ context.Context, _ time.Duration) (*domain.AuditEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.entries) == 0 {
		return nil, nil
	}
	e := o.entries[0]
	o.entries = o.entries[1:]
	return e, nil
}

func (o *fakeOutbox) Len(context.Context) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return int64(len(o.entries)), nil
}

var errBackend = errors.New("backend unavailable")

// testClock is a settable clock shared by every component of a fixture.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	clock    *testClock
	hasher   *PasswordHasher
	accounts *fakeAccounts
	sessions *fakeSessions
	oneTime  *fakeOneTime
	mailer   *fakeMailer
	creds    *CredentialStore
	tokens   *TokenIssuer
	store    *SessionStore
	svc      *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		hasher:   NewPasswordHasher(bcrypt.MinCost),
		sessions: newFakeSessions(),
		mailer:   &fakeMailer{},
	}
	f.accounts = newFakeAccounts(f.sessions)
	f.oneTime = newFakeOneTime(f.accounts)

	log := zerolog.Nop()
	f.creds = NewCredentialStore(f.accounts, f.hasher, LockoutPolicy{}, log)
	f.creds.now = f.clock.Now

	tokens, err := NewTokenIssuer(testSecret, "test", 0)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	tokens.now = f.clock.Now
	f.tokens = tokens

	f.store = NewSessionStore(f.sessions, 0, log)
	f.store.now = f.clock.Now

	f.svc = NewAuthService(AuthConfig{BaseURL: "https://app.example.com/"}, AuthDeps{
		Credentials: f.creds,
		Tokens:      f.tokens,
		Sessions:    f.store,
		Accounts:    f.accounts,
		OneTime:     f.oneTime,
		Hasher:      f.hasher,
		Mailer:      f.mailer,
	}, log)
	f.svc.now = f.clock.Now
	return f
}

func (f *fixture) addStaff(t *testing.T, id, tenantID string, role domain.Role, email, password string) *domain.StaffPrincipal {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	s := &domain.StaffPrincipal{
		ID: id, TenantID: tenantID, Role: role, Email: email, Name: id,
		PasswordHash: hash, Verified: true,
	}
	f.accounts.mu.Lock()
	f.accounts.staff[id] = s
	f.accounts.mu.Unlock()
	return s
}

func (f *fixture) addPortal(t *testing.T, id, tenantID, email, password string) *domain.PortalPrincipal {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	p := &domain.PortalPrincipal{
		ID: id, TenantID: tenantID, LinkedPatientID: "pat-" + id, Email: email,
		PasswordHash: hash, Active: true,
	}
	f.accounts.mu.Lock()
	f.accounts.portal[id] = p
	f.accounts.mu.Unlock()
	return p
}

func staffLogin(email, password string) ports.LoginInput {
	return ports.LoginInput{Kind: domain.KindStaff, Email: email, Password: password}
}
