package handler

import (
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /cartのHTTP
type CartHandler struct {
	uc *usecase.CartUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type AddCartRequest struct {
	ItemID int64 `json:"item_id"`
}

// /cart, /cart/{id} を登録
func (h *CartHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/cart")
	g.GET("", h.getCart)
	g.POST("", h.addToCart)
	g.DELETE("/:id", h.deleteLine)
}

func (h *CartHandler) getCart(c echo.Context) error {
	out, err := h.uc.ListLines(c.Request().Context(), principalOf(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) addToCart(c echo.Context) error {
	var req AddCartRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.ItemID <= 0 {
		return badRequest(c, "item_id is required")
	}

	out, err := h.uc.AddLine(c.Request().Context(), principalOf(c), req.ItemID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) deleteLine(c echo.Context) error {
	lineID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.RemoveLine(c.Request().Context(), principalOf(c), lineID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
