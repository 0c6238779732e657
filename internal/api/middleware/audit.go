package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medora/clinic-core/internal/api/handler"
	"github.com/medora/clinic-core/internal/core/domain"
)

// AuditRecorder records one audit entry. It must not fail the request.
type AuditRecorder interface {
	Record(ctx context.Context, in domain.AuditInput)
}

// Audit records the audit info a handler attached, once the handler has
// answered a mutating request with a 2xx status.
func Audit(rec AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				return err
			}
			if !isMutation(c.Request().Method) {
				return nil
			}
			if status := c.Response().Status; status < 200 || status > 299 {
				return nil
			}
			info, ok := handler.AuditFrom(c)
			if !ok {
				return nil
			}

			var actor domain.Principal
			if info.Actor != nil {
				actor = *info.Actor
			} else if p, err := handler.PrincipalFrom(c); err == nil {
				actor = p
			} else {
				return nil
			}

			rec.Record(c.Request().Context(), domain.AuditInput{
				Actor:     actor,
				TenantID:  info.TenantID,
				Action:    info.Action,
				Entity:    info.Entity,
				EntityID:  info.EntityID,
				Changes:   info.Changes,
				IP:        c.RealIP(),
				UserAgent: c.Request().UserAgent(),
			})
			return nil
		}
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
