package handler

import (
	"net/http"
	"time"

	"storefront/internal/middleware"
	"storefront/internal/usecase"
	auth "storefront/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
)

type AuthHandler struct {
	uc           *auth.AuthUsecase
	users        *usecase.UserUsecase
	cookieSecure bool
}

// DIコンストラクタ
func NewAuthHandler(uc *auth.AuthUsecase, users *usecase.UserUsecase, cookieSecure bool) *AuthHandler {
	return &AuthHandler{uc: uc, users: users, cookieSecure: cookieSecure}
}

type requestResetRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/auth")
	g.POST("/signup", h.signup)
	g.POST("/signin", h.signin)
	g.POST("/signout", h.signout)
	g.POST("/request-reset", h.requestReset)
	g.POST("/reset-password", h.resetPassword)

	e.GET("/me", h.me)
}

func (h *AuthHandler) signup(c echo.Context) error {
	var req auth.SignupInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.Signup(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	h.setTokenCookie(c, out.Token, out.ExpiresAt)
	return c.JSON(http.StatusCreated, out)
}

func (h *AuthHandler) signin(c echo.Context) error {
	var req auth.SigninInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.Signin(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	h.setTokenCookie(c, out.Token, out.ExpiresAt)
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) signout(c echo.Context) error {
	if err := h.uc.Signout(c.Request().Context(), principalOf(c)); err != nil {
		return writeError(c, err)
	}
	h.clearTokenCookie(c)
	return c.JSON(http.StatusOK, SuccessResponse{Message: "goodbye"})
}

func (h *AuthHandler) requestReset(c echo.Context) error {
	var req requestResetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	if err := h.uc.RequestReset(c.Request().Context(), req.Email); err != nil {
		return writeError(c, err)
	}
	//登録の有無にかかわらず同じ返事
	return c.JSON(http.StatusOK, SuccessResponse{Message: "if that email is registered, a reset link has been sent"})
}

func (h *AuthHandler) resetPassword(c echo.Context) error {
	var req auth.ResetPasswordInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.ResetPassword(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	h.setTokenCookie(c, out.Token, out.ExpiresAt)
	return c.JSON(http.StatusOK, out)
}

// 未ログインなら null
func (h *AuthHandler) me(c echo.Context) error {
	out, err := h.users.Me(c.Request().Context(), principalOf(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) setTokenCookie(c echo.Context, token string, exp time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
}

func (h *AuthHandler) clearTokenCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
