package dto

import (
	"checkout-engine/internal/model"

	"github.com/shopspring/decimal"
)

type Item struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type PlaceOrderRequest struct {
	CustomerName  string  `json:"customer_name"`
	CustomerPhone string  `json:"customer_phone"`
	Items         []*Item `json:"items"`
	CouponCode    string  `json:"coupon_code,omitempty"`
}

type ValidateCouponRequest struct {
	Code          string          `json:"code"`
	CartGross     decimal.Decimal `json:"cart_gross"`
	CustomerPhone string          `json:"customer_phone"`
}

type ValidateCouponResponse struct {
	Code         string          `json:"code"`
	DiscountType string          `json:"discount_type"`
	Discount     decimal.Decimal `json:"discount"`
	TotalGross   decimal.Decimal `json:"total_gross"`
}

type MobileMoneyRequest struct {
	OrderID  uint   `json:"order_id"`
	Provider string `json:"provider"`
	Channel  string `json:"channel"`
	Phone    string `json:"phone"`
}

type ManualPaymentRequest struct {
	OrderID          uint   `json:"order_id"`
	PaymentOptionID  uint   `json:"payment_option_id"`
	Phone            string `json:"phone"`
	AccountReference string `json:"account_reference,omitempty"`
}

// ReconcileRequest identifies the payment by payment_id, or by order_id
// when payment_id is omitted.
type ReconcileRequest struct {
	OrderID   uint             `json:"order_id,omitempty"`
	PaymentID uint             `json:"payment_id,omitempty"`
	Phone     string           `json:"phone"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

type AdminConfirmRequest struct {
	ExternalTransactionID string `json:"external_transaction_id,omitempty"`
	Force                 bool   `json:"force,omitempty"`
}

type ErrorResponse struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	// set when the failure left a payment behind, e.g. a push that the
	// provider did not acknowledge
	Payment *model.Payment `json:"payment,omitempty"`
}

// CallbackAck is what providers receive for every callback delivery.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
