package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/medora/clinic-core/internal/api/handler"
	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/service"
)

// RequireRoles lets the request through when the principal holds one of
// roles. super_admin always passes; an empty list only requires
// authentication. Must run after Auth.
func RequireRoles(roles ...domain.Role) echo.MiddlewareFunc {
	access := service.NewAccessControl()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := handler.PrincipalFrom(c)
			if err != nil {
				return err
			}
			if err := access.Authorize(p, roles...); err != nil {
				return err
			}
			return next(c)
		}
	}
}
