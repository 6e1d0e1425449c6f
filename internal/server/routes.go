package server

import (
	"net/http"

	"storefront/internal/handler"

	"github.com/labstack/echo/v4"
)

// Handlers はルートに載せるhandler一式
type Handlers struct {
	Auth          *handler.AuthHandler
	Items         *handler.ItemHandler
	Cart          *handler.CartHandler
	Checkout      *handler.CheckoutHandler
	Orders        *handler.OrderHandler
	Users         *handler.UserHandler
	AdminCheckout *handler.AdminCheckoutHandler
	AdminAudit    *handler.AdminAuditHandler
	Health        *handler.HealthHandler

	// /metrics（prometheus）
	Metrics http.Handler
}

func RegisterRoutes(e *echo.Echo, h Handlers) {
	h.Auth.RegisterRoutes(e)
	h.Items.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e)
	h.Checkout.RegisterRoutes(e)
	h.Orders.RegisterRoutes(e)
	h.Users.RegisterRoutes(e)
	h.AdminCheckout.RegisterRoutes(e)
	h.AdminAudit.RegisterRoutes(e)
	h.Health.RegisterRoutes(e)

	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics))
	}
}
