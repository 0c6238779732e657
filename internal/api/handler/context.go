package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/medora/clinic-core/internal/core/domain"
)

const (
	principalKey = "principal"
	auditKey     = "audit"
)

// AuditInfo is what a handler attaches to a mutating request for the audit
// middleware. Actor overrides the request principal for anonymous flows such
// as invitation acceptance.
type AuditInfo struct {
	Actor    *domain.Principal
	TenantID string
	Action   string
	Entity   string
	EntityID string
	Changes  map[string]any
}

// SetPrincipal stores the authenticated principal on the request.
func SetPrincipal(c echo.Context, p domain.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the principal set by the Auth middleware. Its absence
// means the route was wired without authentication and is reported as an
// invalid token.
func PrincipalFrom(c echo.Context) (domain.Principal, error) {
	p, ok := c.Get(principalKey).(domain.Principal)
	if !ok || p.ID == "" {
		return domain.Principal{}, domain.ErrTokenInvalid
	}
	return p, nil
}

// SetAudit marks the request for auditing once it completes successfully.
func SetAudit(c echo.Context, info AuditInfo) {
	c.Set(auditKey, info)
}

func AuditFrom(c echo.Context) (AuditInfo, bool) {
	info, ok := c.Get(auditKey).(AuditInfo)
	return info, ok
}
