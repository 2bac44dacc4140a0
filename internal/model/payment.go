package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "INITIATED"
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSuccess   PaymentStatus = "SUCCESS"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// IsTerminal reports whether no further transition may leave this status.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentSuccess, PaymentFailed, PaymentRefunded:
		return true
	case PaymentInitiated, PaymentPending:
		return false
	}
	return true
}

// CanTransitionTo reports whether the engine may move a payment from s to next.
// REFUNDED is never a target here; refunds live outside the engine.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentInitiated:
		switch next {
		case PaymentPending, PaymentSuccess, PaymentFailed:
			return true
		}
	case PaymentPending:
		switch next {
		case PaymentSuccess, PaymentFailed:
			return true
		}
	case PaymentSuccess, PaymentFailed, PaymentRefunded:
	}
	return false
}

const (
	MethodUnspecified = "UNSPECIFIED"
	MethodMobileMoney = "MOBILE_MONEY"
	MethodManual      = "MANUAL"
)

type Payment struct {
	ID                    uint             `gorm:"primaryKey" json:"id"`
	OrderID               uint             `gorm:"index:idx_payments_order_channel;not null" json:"order_id"`
	UserID                *string          `gorm:"size:64;index" json:"user_id,omitempty"`
	Amount                decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"amount"`
	RequestedAmount       *decimal.Decimal `gorm:"type:decimal(12,2)" json:"requested_amount,omitempty"` // as pushed to the provider
	Currency              string           `gorm:"size:8;not null" json:"currency"`
	Method                string           `gorm:"size:32;not null" json:"method"`
	Provider              string           `gorm:"size:32" json:"provider,omitempty"`
	Channel               string           `gorm:"size:32;index:idx_payments_order_channel" json:"channel,omitempty"`
	PhoneNumber           string           `gorm:"size:32" json:"phone_number,omitempty"`
	Status                PaymentStatus    `gorm:"size:16;index;not null" json:"status"`
	PaymentOptionID       *uint            `json:"payment_option_id,omitempty"`
	AccountReference      string           `gorm:"size:128" json:"account_reference,omitempty"`
	ProviderRef           *string          `gorm:"size:128;index" json:"provider_ref,omitempty"`
	ExternalRequestID     *string          `gorm:"size:64;uniqueIndex" json:"external_request_id,omitempty"`
	ExternalTransactionID *string          `gorm:"size:128;index" json:"external_transaction_id,omitempty"`
	RawRequestPayload     string           `gorm:"type:text" json:"-"`
	RawCallbackPayload    string           `gorm:"type:text" json:"-"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// PaymentOption is read-mostly configuration describing how a customer can pay.
type PaymentOption struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Code           string `gorm:"size:64;uniqueIndex;not null" json:"code"`
	Name           string `gorm:"size:255;not null" json:"name"`
	Provider       string `gorm:"size:32;not null" json:"provider"`
	Channel        string `gorm:"size:32" json:"channel,omitempty"`
	BusinessNumber string `gorm:"size:32" json:"business_number,omitempty"`
	// e.g. "ORDER-{order_id}"; {order_id} and {phone} are substituted.
	AccountReferenceTemplate string    `gorm:"size:128" json:"account_reference_template,omitempty"`
	SupportsPush             bool      `gorm:"not null" json:"supports_push"`
	IsActive                 bool      `gorm:"not null" json:"is_active"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// PaymentChannel is the channel a payment made through this option is keyed on.
func (o *PaymentOption) PaymentChannel() string {
	if o.Channel != "" {
		return o.Channel
	}
	return o.Code
}
