package middleware

import (
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/policy"

	"github.com/labstack/echo/v4"
)

// RequireAnyRole はグループ単位のガード（/admin 配下など）。
// usecase側でも同じ判定をするので、ここは入口で早めに落とすだけ。
func RequireAnyRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFrom(c)
			if p == nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthenticated"))
			}
			if !policy.HasAny(p, roles...) {
				return c.JSON(http.StatusForbidden, errorJSON("forbidden"))
			}
			return next(c)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}
