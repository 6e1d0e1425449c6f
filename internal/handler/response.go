package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/apperr"
	"storefront/internal/domain/model"
	"storefront/internal/middleware"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	// checkoutがどこまで進んだか
	State string `json:"state,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

// usecaseのエラーをHTTPに変える
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	kind := apperr.KindOf(err)

	//500は中身を出さない
	if kind == apperr.KindInternal {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: kind.String()})
	}

	res := ErrorResponse{Error: err.Error(), Code: kind.String()}
	if ae, ok := apperr.AsError(err); ok {
		if ae.Message != "" {
			res.Error = ae.Message
		}
		res.State = ae.State
	}
	return c.JSON(kind.HTTPStatus(), res)
}

func principalOf(c echo.Context) *model.Principal {
	return middleware.PrincipalFrom(c)
}

// :id をint64に
func paramID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: apperr.KindValidation.String()})
}
