package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

type AuditHandler struct {
	auditService ports.AuditService
}

func NewAuditHandler(auditService ports.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// List returns audit entries of the caller's tenant, newest first.
//
// @Summary      List audit log
// @Tags         audit
// @Produce      json
// @Security     BearerAuth
// @Param        entity    query     string  false  "Entity type"
// @Param        entityId  query     string  false  "Entity id"
// @Param        actorId   query     string  false  "Actor id"
// @Param        limit     query     int     false  "Page size (max 200)"
// @Param        offset    query     int     false  "Page offset"
// @Success      200       {object}  map[string]any
// @Failure      403       {object}  ErrorResponse
// @Router       /audit-logs [get]
func (h *AuditHandler) List(c echo.Context) error {
	p, err := PrincipalFrom(c)
	if err != nil {
		return err
	}
	var f domain.AuditFilter
	if err := echo.QueryParamsBinder(c).
		String("entity", &f.Entity).
		String("entityId", &f.EntityID).
		String("actorId", &f.ActorID).
		Int("limit", &f.Limit).
		Int("offset", &f.Offset).
		BindError(); err != nil {
		return domain.NewValidationError("limit and offset must be integers")
	}

	entries, err := h.auditService.List(c.Request().Context(), p, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newList(entries))
}
