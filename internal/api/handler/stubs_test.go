package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

type stubAuthService struct {
	loginFn          func(ctx context.Context, in ports.LoginInput) (*ports.AuthResult, error)
	refreshFn        func(ctx context.Context, raw string) (*ports.AuthResult, error)
	logoutFn         func(ctx context.Context, raw string) error
	authenticateFn   func(ctx context.Context, token string) (domain.Principal, error)
	requestResetFn   func(ctx context.Context, in ports.PasswordResetInput) error
	resetFn          func(ctx context.Context, token, newPassword string) error
	changePasswordFn func(ctx context.Context, actor domain.Principal, current, next string) error
	acceptFn         func(ctx context.Context, in ports.AcceptInvitationInput) (*domain.StaffPrincipal, error)
	inviteFn         func(ctx context.Context, actor domain.Principal, in ports.InviteInput) (*domain.Invitation, error)
}

func (s *stubAuthService) Login(ctx context.Context, in ports.LoginInput) (*ports.AuthResult, error) {
	return s.loginFn(ctx, in)
}

func (s *stubAuthService) Refresh(ctx context.Context, raw string) (*ports.AuthResult, error) {
	return s.refreshFn(ctx, raw)
}

func (s *stubAuthService) Logout(ctx context.Context, raw string) error {
	if s.logoutFn == nil {
		return nil
	}
	return s.logoutFn(ctx, raw)
}

func (s *stubAuthService) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	return s.authenticateFn(ctx, token)
}

func (s *stubAuthService) RequestPasswordReset(ctx context.Context, in ports.PasswordResetInput) error {
	if s.requestResetFn == nil {
		return nil
	}
	return s.requestResetFn(ctx, in)
}

func (s *stubAuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.resetFn(ctx, token, newPassword)
}

func (s *stubAuthService) ChangePassword(ctx context.Context, actor domain.Principal, current, next string) error {
	return s.changePasswordFn(ctx, actor, current, next)
}

func (s *stubAuthService) AcceptInvitation(ctx context.Context, in ports.AcceptInvitationInput) (*domain.StaffPrincipal, error) {
	return s.acceptFn(ctx, in)
}

func (s *stubAuthService) Invite(ctx context.Context, actor domain.Principal, in ports.InviteInput) (*domain.Invitation, error) {
	return s.inviteFn(ctx, actor, in)
}

type stubStaffService struct {
	listFn       func(ctx context.Context, actor domain.Principal, f ports.StaffFilter) ([]*domain.StaffPrincipal, error)
	getFn        func(ctx context.Context, actor domain.Principal, id string) (*domain.StaffPrincipal, error)
	changeRoleFn func(ctx context.Context, actor domain.Principal, id string, role domain.Role) (*domain.StaffPrincipal, error)
}

func (s *stubStaffService) List(ctx context.Context, actor domain.Principal, f ports.StaffFilter) ([]*domain.StaffPrincipal, error) {
	return s.listFn(ctx, actor, f)
}

func (s *stubStaffService) Get(ctx context.Context, actor domain.Principal, id string) (*domain.StaffPrincipal, error) {
	return s.getFn(ctx, actor, id)
}

func (s *stubStaffService) ChangeRole(ctx context.Context, actor domain.Principal, id string, role domain.Role) (*domain.StaffPrincipal, error) {
	return s.changeRoleFn(ctx, actor, id, role)
}

type stubAuditService struct {
	listFn func(ctx context.Context, actor domain.Principal, f domain.AuditFilter) ([]domain.AuditEntry, error)
}

func (s *stubAuditService) List(ctx context.Context, actor domain.Principal, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	return s.listFn(ctx, actor, f)
}

var (
	ownerA = domain.Principal{ID: "own-a", Kind: domain.KindStaff, TenantID: "A", Role: domain.RoleOwner, Email: "owner@a.io"}
	nurseA = domain.Principal{ID: "nur-a", Kind: domain.KindStaff, TenantID: "A", Role: domain.RoleNurse, Email: "nurse@a.io"}
)

// newContext builds an echo context with the JSON body and validator wired
// the way the router does.
func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}
