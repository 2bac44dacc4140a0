package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderRefunded   OrderStatus = "REFUNDED"
	OrderFailed     OrderStatus = "FAILED"
	OrderCompleted  OrderStatus = "COMPLETED"
)

type Order struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	CustomerName   string          `gorm:"size:255;not null" json:"customer_name"`
	CustomerPhone  string          `gorm:"size:32;index;not null" json:"customer_phone"`
	UserID         *string         `gorm:"size:64;index" json:"user_id,omitempty"`
	Status         OrderStatus     `gorm:"size:32;index;not null" json:"status"`
	TotalGross     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_gross"`
	TotalNet       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_net"`
	VatAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"vat_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discount_amount"`
	CouponID       *uint           `gorm:"index" json:"coupon_id,omitempty"`
	CouponCode     *string         `gorm:"size:64" json:"coupon_code,omitempty"`
	Items          []OrderItem     `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderItem is a price snapshot taken when the order was assembled. It is
// never updated afterwards. VatAmount is per unit, like the two prices.
type OrderItem struct {
	ID uint `gorm:"primaryKey" json:"id"`
	// FK → orders.id
	OrderID uint `gorm:"index;not null" json:"order_id"`
	// FK → products.id
	ProductID      uint            `gorm:"index;not null" json:"product_id"`
	Quantity       int             `gorm:"not null" json:"quantity"`
	UnitPriceGross decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price_gross"`
	UnitPriceNet   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price_net"`
	VatAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"vat_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}
