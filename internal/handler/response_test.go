package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/apperr"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantBody  string
		wantState string
	}{
		{"unauthenticated", apperr.New(apperr.KindUnauthenticated, "you must be signed in"), http.StatusUnauthorized, "you must be signed in", ""},
		{"forbidden", apperr.New(apperr.KindForbidden, "nope"), http.StatusForbidden, "nope", ""},
		{"not found", apperr.New(apperr.KindNotFound, "order not found"), http.StatusNotFound, "order not found", ""},
		{"validation", apperr.New(apperr.KindValidation, "bad"), http.StatusBadRequest, "bad", ""},
		{"conflict", apperr.New(apperr.KindConflict, "email already in use"), http.StatusConflict, "email already in use", ""},
		{"declined", apperr.Wrap(apperr.KindPaymentDeclined, "card declined", errors.New("insufficient funds")).WithState("DECLINED"), http.StatusPaymentRequired, "card declined", "DECLINED"},
		{"reconciliation", apperr.New(apperr.KindReconciliationRequired, "contact support").WithState("CHARGED"), http.StatusConflict, "contact support", "CHARGED"},
		{"wrapped sentinel", fmt.Errorf("load: %w", apperr.ErrNotFound), http.StatusNotFound, "load: not found", ""},
		{"internal hides cause", apperr.Wrap(apperr.KindInternal, "db error", errors.New("password=secret")), http.StatusInternalServerError, "internal error", ""},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			require.NoError(t, writeError(c, tt.err))

			assert.Equal(t, tt.wantCode, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body.Error)
			assert.Equal(t, tt.wantState, body.State)
			assert.Equal(t, apperr.KindOf(tt.err).String(), body.Code)
		})
	}
}
