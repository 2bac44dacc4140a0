package repository

import (
	"context"
	"time"

	"checkout-engine/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CouponRepository interface {
	Seed(ctx context.Context) error
	Create(ctx context.Context, coupon *model.Coupon) error
	FindByCode(ctx context.Context, tx *gorm.DB, code string) (*model.Coupon, error)
	LockByID(ctx context.Context, tx *gorm.DB, couponID uint) (*model.Coupon, error)
	CountRedemptions(ctx context.Context, tx *gorm.DB, couponID uint, identity model.Identity) (int64, error)
	CreateRedemption(ctx context.Context, tx *gorm.DB, redemption *model.CouponRedemption) error
	IncrementRedeemed(ctx context.Context, tx *gorm.DB, couponID uint, at time.Time) error
}

type couponRepoImpl struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepoImpl{
		db: db,
	}
}

func (r *couponRepoImpl) Seed(ctx context.Context) error {
	maxDiscount := decimal.NewFromInt(500)
	limit := 100
	perUser := 1
	coupons := []model.Coupon{
		{
			Code:              "WELCOME10",
			DiscountType:      model.DiscountPercent,
			DiscountValue:     decimal.NewFromInt(10),
			MaxDiscountAmount: &maxDiscount,
			MinOrderAmount:    decimal.NewFromInt(200),
			UsageLimit:        &limit,
			UsageLimitPerUser: &perUser,
			IsActive:          true,
		},
		{
			Code:           "FLAT50",
			DiscountType:   model.DiscountFixed,
			DiscountValue:  decimal.NewFromInt(50),
			MinOrderAmount: decimal.Zero,
			IsActive:       true,
		},
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&coupons).Error
}

func (r *couponRepoImpl) Create(ctx context.Context, coupon *model.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *couponRepoImpl) FindByCode(ctx context.Context, tx *gorm.DB, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	err := tx.WithContext(ctx).
		Where("code = ?", model.NormalizeCouponCode(code)).
		First(&coupon).Error

	if err != nil {
		return nil, err
	}

	return &coupon, nil
}

func (r *couponRepoImpl) LockByID(ctx context.Context, tx *gorm.DB, couponID uint) (*model.Coupon, error) {
	var coupon model.Coupon
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", couponID).
		First(&coupon).Error

	if err != nil {
		return nil, err
	}

	return &coupon, nil
}

// CountRedemptions counts prior redemptions of a coupon by one identity:
// by user id when authenticated, otherwise by phone.
func (r *couponRepoImpl) CountRedemptions(ctx context.Context, tx *gorm.DB, couponID uint, identity model.Identity) (int64, error) {
	q := tx.WithContext(ctx).Model(&model.CouponRedemption{}).
		Where("coupon_id = ?", couponID)

	if identity.Authenticated() {
		q = q.Where("user_id = ?", *identity.UserID)
	} else {
		q = q.Where("customer_phone = ?", identity.Phone)
	}

	var count int64
	err := q.Count(&count).Error
	return count, err
}

func (r *couponRepoImpl) CreateRedemption(ctx context.Context, tx *gorm.DB, redemption *model.CouponRedemption) error {
	return tx.WithContext(ctx).Create(redemption).Error
}

func (r *couponRepoImpl) IncrementRedeemed(ctx context.Context, tx *gorm.DB, couponID uint, at time.Time) error {
	result := tx.WithContext(ctx).Model(&model.Coupon{}).
		Where("id = ?", couponID).
		Updates(map[string]interface{}{
			"times_redeemed":   gorm.Expr("times_redeemed + 1"),
			"last_redeemed_at": at,
			"updated_at":       at,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
