package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
	cookies     CookieConfig
}

func NewAuthHandler(authService ports.AuthService, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{authService: authService, cookies: cookies}
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type portalLoginRequest struct {
	TenantID string `json:"tenantId" validate:"required"`
	Email    string `json:"email"    validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type forgotPasswordRequest struct {
	Email    string `json:"email"    validate:"required,max=254"`
	Kind     string `json:"kind"     validate:"omitempty,oneof=staff portal"`
	TenantID string `json:"tenantId" validate:"required_if=Kind portal"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"       validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=128"`
}

type acceptInviteRequest struct {
	Token    string `json:"token"    validate:"required"`
	Name     string `json:"name"     validate:"required,max=200"`
	Password string `json:"password" validate:"required,max=128"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=128"`
	NewPassword     string `json:"newPassword"     validate:"required,max=128"`
}

type loginResponse struct {
	User        domain.Principal `json:"user"`
	AccessToken string           `json:"accessToken"`
	ExpiresAt   time.Time        `json:"expiresAt"`
}

type refreshResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	User *domain.StaffPrincipal `json:"user"`
}

// Login authenticates a staff member.
//
// @Summary      Staff login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return h.login(c, ports.LoginInput{Kind: domain.KindStaff, Email: req.Email, Password: req.Password})
}

// PortalLogin authenticates a patient-portal user within a tenant.
//
// @Summary      Portal login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      portalLoginRequest  true  "Credentials"
// @Success      200   {object}  loginResponse
// @Failure      401   {object}  ErrorResponse
// @Router       /portal/auth/login [post]
func (h *AuthHandler) PortalLogin(c echo.Context) error {
	var req portalLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return h.login(c, ports.LoginInput{
		Kind:     domain.KindPortal,
		TenantID: req.TenantID,
		Email:    req.Email,
		Password: req.Password,
	})
}

func (h *AuthHandler) login(c echo.Context, in ports.LoginInput) error {
	res, err := h.authService.Login(c.Request().Context(), in)
	if err != nil {
		return err
	}
	h.cookies.setRefresh(c, res.RefreshToken, res.RefreshExpiresAt)
	return c.JSON(http.StatusOK, loginResponse{
		User:        res.Principal,
		AccessToken: res.AccessToken,
		ExpiresAt:   res.AccessExpiresAt,
	})
}

// Refresh rotates the refresh cookie and returns a new access token.
//
// @Summary      Refresh access token
// @Tags         auth
// @Produce      json
// @Success      200  {object}  refreshResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := refreshTokenFrom(c)
	if raw == "" {
		return domain.ErrInvalidRefreshToken
	}
	res, err := h.authService.Refresh(c.Request().Context(), raw)
	if err != nil {
		h.cookies.clearRefresh(c)
		return err
	}
	h.cookies.setRefresh(c, res.RefreshToken, res.RefreshExpiresAt)
	return c.JSON(http.StatusOK, refreshResponse{AccessToken: res.AccessToken, ExpiresAt: res.AccessExpiresAt})
}

// Logout revokes the refresh session and clears the cookie. It succeeds
// without a cookie.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  messageResponse
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.authService.Logout(c.Request().Context(), refreshTokenFrom(c)); err != nil {
		return err
	}
	h.cookies.clearRefresh(c)
	return c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

// Me returns the live principal of the bearer token.
//
// @Summary      Current principal
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.Principal
// @Failure      401  {object}  ErrorResponse
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	p, err := PrincipalFrom(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// ForgotPassword always answers 200 so account existence is not revealed.
//
// @Summary      Request password reset
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      forgotPasswordRequest  true  "Account"
// @Success      200   {object}  messageResponse
// @Router       /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	kind := domain.KindStaff
	if req.Kind == string(domain.KindPortal) {
		kind = domain.KindPortal
	}
	if err := h.authService.RequestPasswordReset(c.Request().Context(), ports.PasswordResetInput{
		Kind:     kind,
		TenantID: req.TenantID,
		Email:    req.Email,
	}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "if the account exists, a reset link has been sent"})
}

// ResetPassword consumes a reset token and sets a new password.
//
// @Summary      Reset password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      resetPasswordRequest  true  "Token and new password"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  ErrorResponse
// @Router       /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.authService.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "password updated"})
}

// AcceptInvite creates the invited staff account.
//
// @Summary      Accept staff invitation
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      acceptInviteRequest  true  "Token, name and password"
// @Success      201   {object}  userResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Router       /auth/accept-invite [post]
func (h *AuthHandler) AcceptInvite(c echo.Context) error {
	var req acceptInviteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	staff, err := h.authService.AcceptInvitation(c.Request().Context(), ports.AcceptInvitationInput{
		Token:    req.Token,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	actor := (&domain.Account{Kind: domain.KindStaff, Staff: staff}).Principal()
	SetAudit(c, AuditInfo{
		Actor:    &actor,
		Action:   "accept_invitation",
		Entity:   "staff",
		EntityID: staff.ID,
		Changes:  map[string]any{"email": staff.Email, "role": string(staff.Role)},
	})
	return c.JSON(http.StatusCreated, userResponse{User: staff})
}

// ChangePassword replaces the caller's password and revokes all of their
// sessions, including the current refresh cookie.
//
// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changePasswordRequest  true  "Current and new password"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Router       /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	p, err := PrincipalFrom(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.authService.ChangePassword(c.Request().Context(), p, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}

	h.cookies.clearRefresh(c)
	SetAudit(c, AuditInfo{
		Action:   "change_password",
		Entity:   entityFor(p.Kind),
		EntityID: p.ID,
	})
	return c.JSON(http.StatusOK, messageResponse{Message: "password updated"})
}

func entityFor(kind domain.PrincipalKind) string {
	if kind == domain.KindPortal {
		return "portal_user"
	}
	return "staff"
}
