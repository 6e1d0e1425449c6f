package handler

import (
	"net/http"
	"strconv"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// GET /admin/audit-logs
type AdminAuditHandler struct {
	uc *usecase.AuditUsecase
}

func NewAdminAuditHandler(uc *usecase.AuditUsecase) *AdminAuditHandler {
	return &AdminAuditHandler{uc: uc}
}

func (h *AdminAuditHandler) RegisterRoutes(e *echo.Echo) {
	admin := e.Group("/admin", middleware.RequireAnyRole(model.RoleAdmin))
	admin.GET("/audit-logs", h.list)
}

func (h *AdminAuditHandler) list(c echo.Context) error {
	in := usecase.ListAuditLogsInput{
		Action:       c.QueryParam("action"),
		ResourceType: c.QueryParam("resource_type"),
		ResourceID:   c.QueryParam("resource_id"),
	}

	if v := c.QueryParam("actor_user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid actor_user_id")
		}
		in.ActorUserID = &id
	}

	// RFC3339
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, "invalid from")
		}
		in.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, "invalid to")
		}
		in.To = &t
	}

	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "invalid limit")
		}
		in.Limit = l
	}
	if v := c.QueryParam("offset"); v != "" {
		o, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "invalid offset")
		}
		in.Offset = o
	}

	out, err := h.uc.ListAuditLogs(c.Request().Context(), principalOf(c), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
