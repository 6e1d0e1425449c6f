package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /admin/checkouts 照合待ちの確認と解決
type AdminCheckoutHandler struct {
	uc *usecase.AdminCheckoutUsecase
}

func NewAdminCheckoutHandler(uc *usecase.AdminCheckoutUsecase) *AdminCheckoutHandler {
	return &AdminCheckoutHandler{uc: uc}
}

func (h *AdminCheckoutHandler) RegisterRoutes(e *echo.Echo) {
	// /admin 配下はADMIN限定
	admin := e.Group("/admin", middleware.RequireAnyRole(model.RoleAdmin))
	admin.GET("/checkouts", h.list)
	admin.POST("/checkouts/:id/resolve", h.resolve)
}

func (h *AdminCheckoutHandler) list(c echo.Context) error {
	in := usecase.ListAttemptsInput{Status: c.QueryParam("status")}

	if v := c.QueryParam("user_id"); v != "" {
		uid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid user_id")
		}
		in.UserID = &uid
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

	out, err := h.uc.ListAttempts(c.Request().Context(), principalOf(c), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminCheckoutHandler) resolve(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return badRequest(c, "invalid id")
	}

	var req usecase.ResolveAttemptInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.ResolveAttempt(c.Request().Context(), principalOf(c), id, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
