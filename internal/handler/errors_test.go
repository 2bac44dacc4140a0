package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"checkout-engine/internal/model"
	"checkout-engine/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err    error
		code   int
		reason string
	}{
		{&service.ValidationError{Field: "phone", Message: "is required"}, http.StatusBadRequest, "ValidationError"},
		{fmt.Errorf("checkout: %w", &service.InsufficientStockError{ProductID: 1}), http.StatusConflict, "InsufficientStock"},
		{&service.CouponError{Code: "X", Reason: service.CouponExpired}, http.StatusUnprocessableEntity, "CouponError.Expired"},
		{fmt.Errorf("order 7: %w", service.ErrNotFound), http.StatusNotFound, "NotFound"},
		{service.ErrPaymentOptionInactive, http.StatusUnprocessableEntity, "PaymentOptionInactive"},
		{service.ErrPaymentConflict, http.StatusConflict, "Conflict"},
		{fmt.Errorf("%w: timeout", service.ErrProviderUnavailable), http.StatusBadGateway, "ProviderUnavailable"},
		{echo.NewHTTPError(http.StatusForbidden, "admin role required"), http.StatusForbidden, "Forbidden"},
		{errors.New("database is locked"), http.StatusInternalServerError, "Internal"},
	}

	for _, tc := range cases {
		t.Run(tc.reason, func(t *testing.T) {
			code, resp := Status(tc.err)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.reason, resp.Reason)
		})
	}
}

func TestStatusHidesInternalDetail(t *testing.T) {
	_, resp := Status(errors.New("dial tcp 10.0.0.3:3306: refused"))
	assert.NotContains(t, resp.Message, "10.0.0.3")
}

func TestErrorHandlerAttachesPayment(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/payments/mobile-money", nil), rec)

	p := &model.Payment{ID: 5, Status: model.PaymentInitiated}
	ErrorHandler()(withPayment(p, fmt.Errorf("%w: timeout", service.ErrProviderUnavailable)), c)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"ProviderUnavailable"`)
	assert.Contains(t, rec.Body.String(), `"payment":{"id":5`)
}
