package handler

import (
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /users（権限管理）
type UserHandler struct {
	uc *usecase.UserUsecase
}

func NewUserHandler(uc *usecase.UserUsecase) *UserHandler {
	return &UserHandler{uc: uc}
}

type UpdatePermissionsRequest struct {
	Permissions []model.Role `json:"permissions"`
}

func (h *UserHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/users")
	g.GET("", h.list)
	g.PUT("/:id/permissions", h.updatePermissions)
}

func (h *UserHandler) list(c echo.Context) error {
	out, err := h.uc.ListUsers(c.Request().Context(), principalOf(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *UserHandler) updatePermissions(c echo.Context) error {
	userID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid user_id")
	}

	var req UpdatePermissionsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.UpdatePermissions(c.Request().Context(), principalOf(c), userID, req.Permissions)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
