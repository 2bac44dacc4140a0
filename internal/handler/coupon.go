package handler

import (
	"net/http"
	"strings"

	"checkout-engine/internal/dto"
	"checkout-engine/internal/middleware"
	"checkout-engine/internal/model"
	"checkout-engine/internal/service"

	"github.com/labstack/echo/v4"
)

type CouponHandler struct {
	couponService service.CouponService
}

func NewCouponHandler(couponService service.CouponService) *CouponHandler {
	return &CouponHandler{couponService: couponService}
}

// Validate previews a coupon against a cart total without redeeming it.
func (h *CouponHandler) Validate(c echo.Context) error {
	var req dto.ValidateCouponRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Code) == "" {
		return &service.ValidationError{Field: "code", Message: "is required"}
	}
	if req.CartGross.IsNegative() {
		return &service.ValidationError{Field: "cart_gross", Message: "must not be negative"}
	}

	identity := model.Identity{UserID: middleware.UserID(c), Phone: strings.TrimSpace(req.CustomerPhone)}
	coupon, discount, err := h.couponService.Preview(c.Request().Context(), strings.TrimSpace(req.Code), req.CartGross, identity)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.ValidateCouponResponse{
		Code:         coupon.Code,
		DiscountType: string(coupon.DiscountType),
		Discount:     discount,
		TotalGross:   req.CartGross.Sub(discount),
	})
}
