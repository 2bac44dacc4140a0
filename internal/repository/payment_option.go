package repository

import (
	"context"

	"checkout-engine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentOptionRepository interface {
	Seed(ctx context.Context) error
	Create(ctx context.Context, option *model.PaymentOption) error
	FindByID(ctx context.Context, optionID uint) (*model.PaymentOption, error)
	ListActive(ctx context.Context) ([]*model.PaymentOption, error)
}

type paymentOptionRepoImpl struct {
	db *gorm.DB
}

func NewPaymentOptionRepository(db *gorm.DB) PaymentOptionRepository {
	return &paymentOptionRepoImpl{
		db: db,
	}
}

func (r *paymentOptionRepoImpl) Seed(ctx context.Context) error {
	options := []model.PaymentOption{
		{Code: "mpesa-stk", Name: "M-Pesa (prompt on phone)", Provider: "MPESA", Channel: "STK", SupportsPush: true, IsActive: true},
		{Code: "mpesa-paybill", Name: "M-Pesa Paybill", Provider: "MPESA", Channel: "PAYBILL", BusinessNumber: "174379", AccountReferenceTemplate: "ORDER-{order_id}", IsActive: true},
		{Code: "airtel-money", Name: "Airtel Money", Provider: "AIRTEL", Channel: "USSD_PUSH", SupportsPush: true, IsActive: true},
		{Code: "bank-transfer", Name: "Bank transfer", Provider: "BANK", AccountReferenceTemplate: "{phone}-{order_id}", IsActive: false},
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&options).Error
}

func (r *paymentOptionRepoImpl) Create(ctx context.Context, option *model.PaymentOption) error {
	return r.db.WithContext(ctx).Create(option).Error
}

func (r *paymentOptionRepoImpl) FindByID(ctx context.Context, optionID uint) (*model.PaymentOption, error) {
	var option model.PaymentOption
	err := r.db.WithContext(ctx).
		Where("id = ?", optionID).
		First(&option).Error

	if err != nil {
		return nil, err
	}

	return &option, nil
}

func (r *paymentOptionRepoImpl) ListActive(ctx context.Context) ([]*model.PaymentOption, error) {
	var options []*model.PaymentOption
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id").
		Find(&options).
		Error

	if err != nil {
		return nil, err
	}

	return options, nil
}
