package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrPaymentOptionInactive = errors.New("payment option inactive")
	// ErrPaymentConflict marks an attempted mutation of a terminal payment.
	ErrPaymentConflict     = errors.New("payment is in a terminal state")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// ValidationError is returned for malformed input, before any transaction opens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

type InsufficientStockError struct {
	ProductID uint
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

type CouponReason string

const (
	CouponNotFound            CouponReason = "NotFound"
	CouponInactive            CouponReason = "Inactive"
	CouponNotYetStarted       CouponReason = "NotYetStarted"
	CouponExpired             CouponReason = "Expired"
	CouponBelowMinimum        CouponReason = "BelowMinimum"
	CouponUsageLimitReached   CouponReason = "UsageLimitReached"
	CouponPerUserLimitReached CouponReason = "PerUserLimitReached"
)

type CouponError struct {
	Code   string
	Reason CouponReason
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Reason)
}

func couponErr(code string, reason CouponReason) error {
	return &CouponError{Code: code, Reason: reason}
}

func notFound(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}
