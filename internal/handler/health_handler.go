package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// 依存先の疎通確認（DB, redis）
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	deps map[string]Pinger
}

func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.healthz)
}

func (h *HealthHandler) healthz(c echo.Context) error {
	res := HealthResponse{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	for name, p := range h.deps {
		if err := p.Ping(c.Request().Context()); err != nil {
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}
	return c.JSON(status, res)
}
