package handler

import (
	"net/http"

	"storefront/internal/apperr"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// POST /checkout
type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

type CheckoutRequest struct {
	Token string `json:"token"`
}

type CheckoutResponse struct {
	Order    usecase.OrderOutput `json:"order"`
	Replayed bool                `json:"replayed,omitempty"`
	// 注文は成功。カートが残っている
	Warning *ErrorResponse `json:"warning,omitempty"`
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/checkout", h.checkout)
}

func (h *CheckoutHandler) checkout(c echo.Context) error {
	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
	idemKey := c.Request().Header.Get("Idempotency-Key")

	res, err := h.uc.Checkout(c.Request().Context(), principalOf(c), usecase.CheckoutInput{
		PaymentToken:   req.Token,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		return writeError(c, err)
	}

	out := CheckoutResponse{Order: res.Order, Replayed: res.Replayed}
	if res.CartClearErr != nil {
		out.Warning = &ErrorResponse{
			Error: "order placed but the cart could not be cleared",
			Code:  apperr.KindCartClearFailed.String(),
		}
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, out)
}
