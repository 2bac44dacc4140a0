package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-engine/internal/model"
	"checkout-engine/internal/pricing"
	"checkout-engine/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CouponService validates coupons and records redemptions. Validation is an
// optimistic read; RecordRedemption re-checks the caps under a row lock on
// the coupon, which is what actually prevents over-redemption.
type CouponService interface {
	Validate(ctx context.Context, tx *gorm.DB, code string, cartGross decimal.Decimal, identity model.Identity) (*model.Coupon, decimal.Decimal, error)
	Preview(ctx context.Context, code string, cartGross decimal.Decimal, identity model.Identity) (*model.Coupon, decimal.Decimal, error)
	RecordRedemption(ctx context.Context, tx *gorm.DB, coupon *model.Coupon, discount decimal.Decimal, orderID *uint, identity model.Identity) error
}

type couponServiceImpl struct {
	db         *gorm.DB
	couponRepo repository.CouponRepository
	now        func() time.Time
}

func NewCouponService(db *gorm.DB, couponRepo repository.CouponRepository) CouponService {
	return &couponServiceImpl{
		db:         db,
		couponRepo: couponRepo,
		now:        time.Now,
	}
}

func (s *couponServiceImpl) Preview(ctx context.Context, code string, cartGross decimal.Decimal, identity model.Identity) (*model.Coupon, decimal.Decimal, error) {
	return s.Validate(ctx, s.db, code, cartGross, identity)
}

// Validate runs the eligibility checks in order; the first failure wins.
func (s *couponServiceImpl) Validate(ctx context.Context, tx *gorm.DB, code string, cartGross decimal.Decimal, identity model.Identity) (*model.Coupon, decimal.Decimal, error) {
	coupon, err := s.couponRepo.FindByCode(ctx, tx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, decimal.Zero, couponErr(code, CouponNotFound)
		}
		return nil, decimal.Zero, fmt.Errorf("find coupon: %w", err)
	}

	if !coupon.IsActive {
		return nil, decimal.Zero, couponErr(code, CouponInactive)
	}

	now := s.now()
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return nil, decimal.Zero, couponErr(code, CouponNotYetStarted)
	}
	if coupon.EndsAt != nil && now.After(*coupon.EndsAt) {
		return nil, decimal.Zero, couponErr(code, CouponExpired)
	}

	if cartGross.LessThan(coupon.MinOrderAmount) {
		return nil, decimal.Zero, couponErr(code, CouponBelowMinimum)
	}

	if err := s.checkLimits(ctx, tx, coupon, identity); err != nil {
		return nil, decimal.Zero, err
	}

	discount, err := pricing.CouponDiscount(coupon.DiscountType, coupon.DiscountValue, coupon.MaxDiscountAmount, cartGross)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("coupon %s: %w", coupon.Code, err)
	}

	return coupon, discount, nil
}

func (s *couponServiceImpl) checkLimits(ctx context.Context, tx *gorm.DB, coupon *model.Coupon, identity model.Identity) error {
	if coupon.UsageLimit != nil && coupon.TimesRedeemed >= *coupon.UsageLimit {
		return couponErr(coupon.Code, CouponUsageLimitReached)
	}

	if coupon.UsageLimitPerUser != nil {
		used, err := s.couponRepo.CountRedemptions(ctx, tx, coupon.ID, identity)
		if err != nil {
			return fmt.Errorf("count coupon redemptions: %w", err)
		}
		if used >= int64(*coupon.UsageLimitPerUser) {
			return couponErr(coupon.Code, CouponPerUserLimitReached)
		}
	}

	return nil
}

// RecordRedemption must be called inside the transaction that creates the
// order, after its total is final.
func (s *couponServiceImpl) RecordRedemption(ctx context.Context, tx *gorm.DB, coupon *model.Coupon, discount decimal.Decimal, orderID *uint, identity model.Identity) error {
	locked, err := s.couponRepo.LockByID(ctx, tx, coupon.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return couponErr(coupon.Code, CouponNotFound)
		}
		return fmt.Errorf("lock coupon: %w", err)
	}

	if err := s.checkLimits(ctx, tx, locked, identity); err != nil {
		return err
	}

	now := s.now()
	redemption := &model.CouponRedemption{
		CouponID:       locked.ID,
		OrderID:        orderID,
		DiscountAmount: pricing.Round(discount),
		RedeemedAt:     now,
	}
	if identity.Authenticated() {
		redemption.UserID = identity.UserID
	}
	if identity.Phone != "" {
		phone := identity.Phone
		redemption.CustomerPhone = &phone
	}

	if err := s.couponRepo.CreateRedemption(ctx, tx, redemption); err != nil {
		return fmt.Errorf("store coupon redemption: %w", err)
	}
	if err := s.couponRepo.IncrementRedeemed(ctx, tx, locked.ID, now); err != nil {
		return fmt.Errorf("increment coupon redemptions: %w", err)
	}

	coupon.TimesRedeemed = locked.TimesRedeemed + 1
	coupon.LastRedeemedAt = &now
	return nil
}
