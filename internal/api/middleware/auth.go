package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medora/clinic-core/internal/api/handler"
	"github.com/medora/clinic-core/internal/core/domain"
)

// Authenticator resolves a bearer token to the live principal.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (domain.Principal, error)
}

// Auth validates the bearer token, re-fetches the principal it names and
// injects it into the request context.
func Auth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return domain.ErrTokenInvalid
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				return domain.ErrTokenInvalid
			}

			p, err := auth.Authenticate(c.Request().Context(), strings.TrimSpace(token))
			if err != nil {
				return err
			}
			handler.SetPrincipal(c, p)

			return next(c)
		}
	}
}
