package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medora/clinic-core/internal/api/handler"
	"github.com/medora/clinic-core/internal/core/domain"
)

type stubAuthenticator struct {
	principals map[string]domain.Principal
	err        error
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	if s.err != nil {
		return domain.Principal{}, s.err
	}
	p, ok := s.principals[token]
	if !ok {
		return domain.Principal{}, domain.ErrTokenInvalid
	}
	return p, nil
}

type recordingRecorder struct {
	mu      sync.Mutex
	entries []domain.AuditInput
}

func (r *recordingRecorder) Record(_ context.Context, in domain.AuditInput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, in)
}

var (
	admin = domain.Principal{ID: "adm-1", Kind: domain.KindStaff, TenantID: "A", Role: domain.RoleAdmin}
	root  = domain.Principal{ID: "root", Kind: domain.KindStaff, Role: domain.RoleSuperAdmin}
	nurse = domain.Principal{ID: "nur-1", Kind: domain.KindStaff, TenantID: "A", Role: domain.RoleNurse}
)

func newCtx(method string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	c, rec := newCtx(http.MethodGet)
	c.Request().Header.Set("Authorization", "Bearer good")

	called := false
	mw := Auth(&stubAuthenticator{principals: map[string]domain.Principal{"good": admin}})
	h := mw(func(c echo.Context) error {
		called = true
		p, err := handler.PrincipalFrom(c)
		if err != nil || p != admin {
			t.Fatalf("principal not injected: %+v %v", p, err)
		}
		return c.NoContent(http.StatusOK)
	})

	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called || rec.Code != http.StatusOK {
		t.Fatalf("called=%v code=%d", called, rec.Code)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	cases := map[string]struct {
		header string
		auth   *stubAuthenticator
		want   error
	}{
		"missing header": {"", &stubAuthenticator{}, domain.ErrTokenInvalid},
		"wrong scheme":   {"Basic abc", &stubAuthenticator{}, domain.ErrTokenInvalid},
		"empty token":    {"Bearer ", &stubAuthenticator{}, domain.ErrTokenInvalid},
		"unknown token":  {"Bearer nope", &stubAuthenticator{}, domain.ErrTokenInvalid},
		"expired token":  {"Bearer old", &stubAuthenticator{err: domain.ErrTokenExpired}, domain.ErrTokenExpired},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := newCtx(http.MethodGet)
			if tc.header != "" {
				c.Request().Header.Set("Authorization", tc.header)
			}
			h := Auth(tc.auth)(func(c echo.Context) error {
				t.Fatalf("should not reach next handler")
				return nil
			})
			if err := h(c); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRequireRoles(t *testing.T) {
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	cases := []struct {
		name  string
		p     *domain.Principal
		roles []domain.Role
		want  error
	}{
		{"listed role", &admin, []domain.Role{domain.RoleOwner, domain.RoleAdmin}, nil},
		{"super admin bypass", &root, []domain.Role{domain.RoleOwner}, nil},
		{"empty list", &nurse, nil, nil},
		{"unlisted role", &nurse, []domain.Role{domain.RoleOwner, domain.RoleAdmin}, domain.ErrForbidden},
		{"no principal", nil, []domain.Role{domain.RoleOwner}, domain.ErrTokenInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newCtx(http.MethodGet)
			if tc.p != nil {
				handler.SetPrincipal(c, *tc.p)
			}
			err := RequireRoles(tc.roles...)(next)(c)
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAudit_RecordsSuccessfulMutation(t *testing.T) {
	rec := &recordingRecorder{}
	c, _ := newCtx(http.MethodPatch)
	c.Request().Header.Set("User-Agent", "test-agent")
	handler.SetPrincipal(c, admin)

	h := Audit(rec)(func(c echo.Context) error {
		handler.SetAudit(c, handler.AuditInfo{Action: "update", Entity: "staff", EntityID: "s-2", Changes: map[string]any{"role": "lab"}})
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if len(rec.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(rec.entries))
	}
	got := rec.entries[0]
	if got.Actor.ID != admin.ID || got.Entity != "staff" || got.EntityID != "s-2" || got.UserAgent != "test-agent" || got.IP == "" {
		t.Fatalf("unexpected audit input %+v", got)
	}
}

func TestAudit_UsesHandlerActorForAnonymousFlows(t *testing.T) {
	rec := &recordingRecorder{}
	c, _ := newCtx(http.MethodPost)
	invited := domain.Principal{ID: "st-9", Kind: domain.KindStaff, TenantID: "A", Role: domain.RoleLab}

	h := Audit(rec)(func(c echo.Context) error {
		handler.SetAudit(c, handler.AuditInfo{Actor: &invited, Action: "accept_invitation", Entity: "staff"})
		return c.NoContent(http.StatusCreated)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(rec.entries) != 1 || rec.entries[0].Actor.ID != "st-9" {
		t.Fatalf("unexpected entries %+v", rec.entries)
	}
}

func TestAudit_SkipsNonQualifyingRequests(t *testing.T) {
	cases := map[string]struct {
		method string
		status int
		err    error
		attach bool
	}{
		"read request":     {http.MethodGet, http.StatusOK, nil, true},
		"handler error":    {http.MethodPost, 0, domain.ErrForbidden, true},
		"non-2xx response": {http.MethodPost, http.StatusConflict, nil, true},
		"nothing attached": {http.MethodPost, http.StatusOK, nil, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := &recordingRecorder{}
			c, _ := newCtx(tc.method)
			handler.SetPrincipal(c, admin)

			h := Audit(rec)(func(c echo.Context) error {
				if tc.attach {
					handler.SetAudit(c, handler.AuditInfo{Action: "create", Entity: "invitation"})
				}
				if tc.err != nil {
					return tc.err
				}
				return c.NoContent(tc.status)
			})
			_ = h(c)
			if len(rec.entries) != 0 {
				t.Fatalf("expected no audit entry, got %+v", rec.entries)
			}
		})
	}
}
