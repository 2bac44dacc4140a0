package handler

import (
	"net/http"

	"checkout-engine/internal/dto"
	"checkout-engine/internal/middleware"
	"checkout-engine/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService   service.OrderService
	paymentService service.PaymentService
}

func NewOrderHandler(orderService service.OrderService, paymentService service.PaymentService) *OrderHandler {
	return &OrderHandler{
		orderService:   orderService,
		paymentService: paymentService,
	}
}

func (h *OrderHandler) PlaceOrder(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.PlaceOrderRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	items := make([]service.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item == nil {
			continue
		}
		items = append(items, service.LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.orderService.PlaceOrder(ctx, service.PlaceOrderInput{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		UserID:        middleware.UserID(c),
		Items:         items,
		CouponCode:    req.CouponCode,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, order)
}

// GetOrderPayment returns the order's payment without creating one.
func (h *OrderHandler) GetOrderPayment(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	payment, err := h.paymentService.GetOrderPayment(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, payment)
}

// CreateOrderPayment returns the order's payment, creating an INITIATED
// one on first use. The optional ?method= query sets the method of a new
// row.
func (h *OrderHandler) CreateOrderPayment(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	payment, err := h.paymentService.CreateOrFetch(c.Request().Context(), id, c.QueryParam("method"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, payment)
}
