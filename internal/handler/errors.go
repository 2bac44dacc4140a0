package handler

import (
	"errors"
	"net/http"
	"strconv"

	"checkout-engine/internal/dto"
	"checkout-engine/internal/logging"
	"checkout-engine/internal/model"
	"checkout-engine/internal/service"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// paymentError carries the payment a failed operation left behind so the
// client can still poll it.
type paymentError struct {
	payment *model.Payment
	err     error
}

func (e *paymentError) Error() string { return e.err.Error() }
func (e *paymentError) Unwrap() error { return e.err }

func withPayment(p *model.Payment, err error) error {
	if p == nil {
		return err
	}
	return &paymentError{payment: p, err: err}
}

// Status maps an error to the HTTP status and machine readable reason
// returned to clients.
func Status(err error) (int, dto.ErrorResponse) {
	var (
		valErr   *service.ValidationError
		stockErr *service.InsufficientStockError
		cErr     *service.CouponError
		httpErr  *echo.HTTPError
	)

	resp := dto.ErrorResponse{Message: err.Error()}
	var pErr *paymentError
	if errors.As(err, &pErr) {
		resp.Payment = pErr.payment
	}

	switch {
	case errors.As(err, &valErr):
		resp.Reason, resp.Field = "ValidationError", valErr.Field
		return http.StatusBadRequest, resp
	case errors.As(err, &stockErr):
		resp.Reason = "InsufficientStock"
		return http.StatusConflict, resp
	case errors.As(err, &cErr):
		resp.Reason = "CouponError." + string(cErr.Reason)
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, service.ErrNotFound):
		resp.Reason = "NotFound"
		return http.StatusNotFound, resp
	case errors.Is(err, service.ErrPaymentOptionInactive):
		resp.Reason = "PaymentOptionInactive"
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, service.ErrPaymentConflict):
		resp.Reason = "Conflict"
		return http.StatusConflict, resp
	case errors.Is(err, service.ErrProviderUnavailable):
		resp.Reason = "ProviderUnavailable"
		return http.StatusBadGateway, resp
	case errors.As(err, &httpErr):
		resp.Reason = http.StatusText(httpErr.Code)
		if msg, ok := httpErr.Message.(string); ok {
			resp.Message = msg
		}
		return httpErr.Code, resp
	}

	resp.Reason = "Internal"
	resp.Message = http.StatusText(http.StatusInternalServerError)
	return http.StatusInternalServerError, resp
}

// ErrorHandler writes every error returned by a handler as a JSON
// ErrorResponse.
func ErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, resp := Status(err)
		if code >= http.StatusInternalServerError {
			logging.FromContext(c.Request().Context()).Error("request failed",
				zap.String("route", c.Path()),
				zap.Int("status", code),
				zap.Error(err),
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, resp)
		}
		if err != nil {
			logging.FromContext(c.Request().Context()).Warn("write error response", zap.Error(err))
		}
	}
}

func idParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &service.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return uint(id), nil
}

func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return &service.ValidationError{Field: "body", Message: "malformed request body"}
	}
	return nil
}
