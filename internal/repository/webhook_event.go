package repository

import (
	"context"
	"time"

	"checkout-engine/internal/model"

	"gorm.io/gorm"
)

type ProviderCallbackRepository interface {
	Record(ctx context.Context, tx *gorm.DB, callback *model.ProviderCallback) error
	ListByRequestID(ctx context.Context, tx *gorm.DB, requestID string) ([]*model.ProviderCallback, error)
	Resolve(ctx context.Context, tx *gorm.DB, callbackID, paymentID uint, outcome string) error
}

type providerCallbackRepositoryImpl struct {
	db *gorm.DB
}

func NewProviderCallbackRepository(db *gorm.DB) ProviderCallbackRepository {
	return &providerCallbackRepositoryImpl{db: db}
}

func (r *providerCallbackRepositoryImpl) Record(ctx context.Context, tx *gorm.DB, callback *model.ProviderCallback) error {
	if callback.ReceivedAt.IsZero() {
		callback.ReceivedAt = time.Now()
	}
	return tx.WithContext(ctx).Create(callback).Error
}

func (r *providerCallbackRepositoryImpl) ListByRequestID(ctx context.Context, tx *gorm.DB, requestID string) ([]*model.ProviderCallback, error) {
	var callbacks []*model.ProviderCallback
	err := tx.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("id").
		Find(&callbacks).Error

	if err != nil {
		return nil, err
	}

	return callbacks, nil
}

// Resolve attaches a previously unmatched callback to the payment it
// belonged to, recording what applying it late did.
func (r *providerCallbackRepositoryImpl) Resolve(ctx context.Context, tx *gorm.DB, callbackID, paymentID uint, outcome string) error {
	result := tx.WithContext(ctx).Model(&model.ProviderCallback{}).
		Where("id = ?", callbackID).
		Updates(map[string]interface{}{
			"payment_id": paymentID,
			"outcome":    outcome,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
