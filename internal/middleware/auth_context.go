package middleware

import (
	"context"
	"strings"

	"storefront/internal/domain/model"

	"github.com/labstack/echo/v4"
)

const (
	CtxPrincipalKey = "principal" // *model.Principal

	// ログイン時にhandlerがセットするCookie名
	TokenCookieName = "token"
)

// トークンを呼び出し元に変えるもの（usecase.AuthContext）
type PrincipalResolver interface {
	Resolve(ctx context.Context, credential string) *model.Principal
}

// ResolvePrincipal はBearerヘッダかtoken Cookieから呼び出し元を決めてcontextへ入れる。
// ここでは拒否しない。未ログインかどうかはusecaseが判断する。
func ResolvePrincipal(resolver PrincipalResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := credentialFrom(c)
			if raw != "" {
				if p := resolver.Resolve(c.Request().Context(), raw); p != nil {
					c.Set(CtxPrincipalKey, p)
				}
			}
			return next(c)
		}
	}
}

// PrincipalFrom は未ログインならnil
func PrincipalFrom(c echo.Context) *model.Principal {
	p, _ := c.Get(CtxPrincipalKey).(*model.Principal)
	return p
}

// Authorizationヘッダを優先、なければCookie
func credentialFrom(c echo.Context) string {
	authz := c.Request().Header.Get(echo.HeaderAuthorization)
	if authz != "" {
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	ck, err := c.Cookie(TokenCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(ck.Value)
}
