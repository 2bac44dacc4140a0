package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountFixed   DiscountType = "FIXED"
)

type Coupon struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	Code              string           `gorm:"size:64;uniqueIndex;not null" json:"code"` // stored upper-case
	DiscountType      DiscountType     `gorm:"size:16;not null" json:"discount_type"`
	DiscountValue     decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `gorm:"type:decimal(12,2)" json:"max_discount_amount,omitempty"`
	MinOrderAmount    decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"min_order_amount"`
	UsageLimit        *int             `json:"usage_limit,omitempty"` // nil = unlimited
	UsageLimitPerUser *int             `json:"usage_limit_per_user,omitempty"`
	TimesRedeemed     int              `gorm:"not null;default:0" json:"times_redeemed"`
	IsActive          bool             `gorm:"not null" json:"is_active"`
	StartsAt          *time.Time       `json:"starts_at,omitempty"`
	EndsAt            *time.Time       `json:"ends_at,omitempty"`
	LastRedeemedAt    *time.Time       `json:"last_redeemed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// NormalizeCouponCode is the stored form of a coupon code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// BeforeSave keeps the unique index on code case-insensitive.
func (c *Coupon) BeforeSave(tx *gorm.DB) error {
	c.Code = NormalizeCouponCode(c.Code)
	return nil
}

// CouponRedemption is append-only: one row per discounted order.
type CouponRedemption struct {
	ID             uint            `gorm:"primaryKey"`
	CouponID       uint            `gorm:"index;not null"`
	OrderID        *uint           `gorm:"index"`
	UserID         *string         `gorm:"size:64;index"`
	CustomerPhone  *string         `gorm:"size:32;index"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	RedeemedAt     time.Time       `gorm:"not null"`
}
