package handler

import (
	"net/http"

	"checkout-engine/internal/dto"
	"checkout-engine/internal/service"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

func (h *PaymentHandler) ListOptions(c echo.Context) error {
	options, err := h.paymentService.ListPaymentOptions(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, options)
}

func (h *PaymentHandler) InitiateMobileMoney(c echo.Context) error {
	var req dto.MobileMoneyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	payment, err := h.paymentService.InitiateMobileMoney(c.Request().Context(), service.MobileMoneyInput{
		OrderID:  req.OrderID,
		Provider: req.Provider,
		Channel:  req.Channel,
		Phone:    req.Phone,
	})
	if err != nil {
		return withPayment(payment, err)
	}

	return c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) InitiateManual(c echo.Context) error {
	var req dto.ManualPaymentRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	payment, err := h.paymentService.InitiateManual(c.Request().Context(), service.ManualInput{
		OrderID:          req.OrderID,
		PaymentOptionID:  req.PaymentOptionID,
		Phone:            req.Phone,
		AccountReference: req.AccountReference,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, payment)
}

// Reconcile answers 200 with the payment whether or not the proof matched;
// clients read the status to tell the two apart.
func (h *PaymentHandler) Reconcile(c echo.Context) error {
	var req dto.ReconcileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	payment, err := h.paymentService.ReconcileManual(c.Request().Context(), service.ReconcileInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Phone:     req.Phone,
		Amount:    req.Amount,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) GetPayment(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	payment, err := h.paymentService.GetPayment(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) AdminConfirm(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req dto.AdminConfirmRequest
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}

	payment, err := h.paymentService.AdminConfirm(c.Request().Context(), service.AdminConfirmInput{
		PaymentID:             id,
		ExternalTransactionID: req.ExternalTransactionID,
		Force:                 req.Force,
	})
	if err != nil {
		return withPayment(payment, err)
	}

	return c.JSON(http.StatusOK, payment)
}
