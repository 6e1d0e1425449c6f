package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// New はミドルウェアとルートを載せたechoを返す。
func New(logger *slog.Logger, resolver middleware.PrincipalResolver, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.ResolvePrincipal(resolver))
	e.Use(middleware.RequestLogger(logger))

	RegisterRoutes(e, h)
	return e
}

// Start はctxが終わるまで待ち、終わったら止める。
func Start(ctx context.Context, e *echo.Echo, addr string, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server: listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("server: shutting down")
	return e.Shutdown(shutdownCtx)
}
