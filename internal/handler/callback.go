package handler

import (
	"io"
	"net/http"

	"checkout-engine/internal/client"
	"checkout-engine/internal/dto"
	"checkout-engine/internal/logging"
	"checkout-engine/internal/service"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// maxCallbackBody bounds what we read from a provider callback.
const maxCallbackBody = 1 << 20

type CallbackHandler struct {
	paymentService service.PaymentService
}

func NewCallbackHandler(paymentService service.PaymentService) *CallbackHandler {
	return &CallbackHandler{paymentService: paymentService}
}

func (h *CallbackHandler) Mpesa(c echo.Context) error {
	return h.handle(c, client.ProviderMpesa)
}

func (h *CallbackHandler) Airtel(c echo.Context) error {
	return h.handle(c, client.ProviderAirtel)
}

// handle acknowledges every delivery with a 200; failures are only logged.
func (h *CallbackHandler) handle(c echo.Context, provider string) error {
	ctx := c.Request().Context()
	logger := logging.FromContext(ctx).With(zap.String("provider", provider))

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody))
	if err != nil {
		logger.Warn("read callback body", zap.Error(err))
	}

	if err := h.paymentService.HandleProviderCallback(ctx, provider, body); err != nil {
		logger.Error("handle provider callback", zap.Error(err))
	}

	return c.JSON(http.StatusOK, dto.CallbackAck{ResultCode: 0, ResultDesc: "Accepted"})
}
