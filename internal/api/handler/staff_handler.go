package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

// StaffHandler serves the tenant-scoped staff directory and invitations.
type StaffHandler struct {
	authService  ports.AuthService
	staffService ports.StaffService
}

func NewStaffHandler(authService ports.AuthService, staffService ports.StaffService) *StaffHandler {
	return &StaffHandler{authService: authService, staffService: staffService}
}

type inviteRequest struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Role     string `json:"role"     validate:"required,role"`
	Name     string `json:"name"     validate:"max=200"`
	TenantID string `json:"tenantId"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,role"`
}

// Invite creates a staff invitation and emails the acceptance link.
//
// @Summary      Invite staff member
// @Tags         staff
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      inviteRequest  true  "Invitation"
// @Success      201   {object}  domain.Invitation
// @Failure      400   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Router       /staff/invitations [post]
func (h *StaffHandler) Invite(c echo.Context) error {
	p, err := PrincipalFrom(c)
	if err != nil {
		return err
	}
	var req inviteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return err
	}

	inv, err := h.authService.Invite(c.Request().Context(), p, ports.InviteInput{
		TenantID: req.TenantID,
		Email:    req.Email,
		Role:     role,
		Name:     req.Name,
	})
	if err != nil {
		return err
	}

	SetAudit(c, AuditInfo{
		TenantID: inv.TenantID,
		Action:   "create",
		Entity:   "invitation",
		EntityID: inv.ID,
		Changes:  map[string]any{"email": inv.Email, "role": string(inv.Role)},
	})
	return c.JSON(http.StatusCreated, inv)
}

// List returns the staff of the caller's tenant.
//
// @Summary      List staff
// @Tags         staff
// @Produce      json
// @Security     BearerAuth
// @Param        role    query     string  false  "Filter by role"
// @Param        limit   query     int     false  "Page size (max 200)"
// @Param        offset  query     int     false  "Page offset"
// @Success      200     {object}  map[string]any
// @Failure      403     {object}  ErrorResponse
// @Router       /staff [get]
func (h *StaffHandler) List(c echo.Context) error {
	p, err := PrincipalFrom(c)
	if err != nil {
		return err
	}
	var f ports.StaffFilter
	if err := echo.QueryParamsBinder(c).
		Int("limit", &f.Limit).
		Int("offset", &f.Offset).
		BindError(); err != nil {
		return domain.NewValidationError("limit and offset must be integers")
	}
	if raw := c.QueryParam("role"); raw != "" {
		if f.Role, err = domain.ParseRole(raw); err != nil {
			return err
		}
	}

	staff, err := h.staffService.List(c.Request().Context(), p, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newList(staff))
}

// Get returns one staff member. Members of other tenants are reported as
// not found.
//
// @Summary      Get staff member
// @Tags         staff
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Staff id"
// @Success      200  {object}  domain.StaffPrincipal
// @Failure      404  {object}  ErrorResponse
// @Router       /staff/{id} [get]
func (h *StaffHandler) Get(c echo.Context) error {
	p, err := PrincipalFrom(c)
	if err != nil {
		return err
	}
	staff, err := h.staffService.Get(c.Request().Context(), p, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, staff)
}

// ChangeRole sets a staff member's role. Owner only.
//
// @Summary      Change staff role
// @Tags         staff
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string             true  "Staff id"
// @Param        body  body      changeRoleRequest  true  "New role"
// @Success      200   {object}  domain.StaffPrincipal
// @Failure      400   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Router       /staff/{id}/role [patch]
func (h *StaffHandler) ChangeRole(c echo.Context) error {
	p, err := PrincipalFrom(c)
	if err != nil {
		return err
	}
	var req changeRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return err
	}

	staff, err := h.staffService.ChangeRole(c.Request().Context(), p, c.Param("id"), role)
	if err != nil {
		return err
	}

	SetAudit(c, AuditInfo{
		TenantID: staff.TenantID,
		Action:   "update",
		Entity:   "staff",
		EntityID: staff.ID,
		Changes:  map[string]any{"role": string(role)},
	})
	return c.JSON(http.StatusOK, staff)
}
