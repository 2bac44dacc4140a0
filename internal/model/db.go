package model

import "time"

// ProviderCallback is the audit row for every payment-provider callback,
// written whether or not the body parsed or matched a payment.
type ProviderCallback struct {
	ID         uint   `gorm:"primaryKey"`
	Provider   string `gorm:"size:32;index;not null"`
	RequestID  string `gorm:"size:128;index"`
	PaymentID  *uint  `gorm:"index"`
	Outcome    string `gorm:"size:32;index;not null"` // applied, duplicate, unmatched, unparseable
	RawPayload string `gorm:"type:text;not null"`
	ReceivedAt time.Time
}

// Tables lists every persisted model in migration order.
func Tables() []any {
	return []any{
		&Product{},
		&Order{},
		&OrderItem{},
		&Coupon{},
		&CouponRedemption{},
		&PaymentOption{},
		&Payment{},
		&ProviderCallback{},
	}
}
