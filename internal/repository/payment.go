package repository

import (
	"context"
	"errors"
	"time"

	"checkout-engine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error
	FindByID(ctx context.Context, paymentID uint) (*model.Payment, error)
	LockByID(ctx context.Context, tx *gorm.DB, paymentID uint) (*model.Payment, error)
	FindForOrder(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Payment, error)
	FindOpen(ctx context.Context, tx *gorm.DB, orderID uint, channel string) (*model.Payment, error)
	FindSucceeded(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Payment, error)
	FindInitiatedForOrder(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Payment, error)
	LockByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*model.Payment, error)
	LockByTransactionID(ctx context.Context, tx *gorm.DB, transactionID string) (*model.Payment, error)
	Transition(ctx context.Context, tx *gorm.DB, paymentID uint, from, to model.PaymentStatus, fields map[string]interface{}) (bool, error)
}

type paymentRepoImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepoImpl{
		db: db,
	}
}

var openStatuses = []model.PaymentStatus{model.PaymentInitiated, model.PaymentPending}

func (r *paymentRepoImpl) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepoImpl) FindByID(ctx context.Context, paymentID uint) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Where("id = ?", paymentID).
		First(&payment).Error

	if err != nil {
		return nil, err
	}

	return &payment, nil
}

func (r *paymentRepoImpl) LockByID(ctx context.Context, tx *gorm.DB, paymentID uint) (*model.Payment, error) {
	return r.first(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", paymentID)
}

// FindForOrder returns the first payment ever created for the order.
func (r *paymentRepoImpl) FindForOrder(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Payment, error) {
	return r.first(ctx, tx.Order("id"), "order_id = ?", orderID)
}

// FindOpen returns the non-terminal payment for (order, channel), if any.
func (r *paymentRepoImpl) FindOpen(ctx context.Context, tx *gorm.DB, orderID uint, channel string) (*model.Payment, error) {
	return r.first(ctx, tx.Order("id DESC"),
		"order_id = ? AND channel = ? AND status IN ?", orderID, channel, openStatuses)
}

func (r *paymentRepoImpl) FindSucceeded(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Payment, error) {
	return r.first(ctx, tx.Order("id"),
		"order_id = ? AND status = ?", orderID, model.PaymentSuccess)
}

// FindInitiatedForOrder returns the most recent INITIATED payment for the
// order, falling back to the most recent payment of any status.
func (r *paymentRepoImpl) FindInitiatedForOrder(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Payment, error) {
	payment, err := r.first(ctx, tx.Order("id DESC").Clauses(clause.Locking{Strength: "UPDATE"}),
		"order_id = ? AND status = ?", orderID, model.PaymentInitiated)
	if err == nil {
		return payment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return r.first(ctx, tx.Order("id DESC"), "order_id = ?", orderID)
}

// LockByRequestID matches the correlation id a provider echoes back, which
// is either our externalRequestId or the provider's own request reference.
func (r *paymentRepoImpl) LockByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*model.Payment, error) {
	return r.first(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}),
		"external_request_id = ? OR provider_ref = ?", requestID, requestID)
}

func (r *paymentRepoImpl) LockByTransactionID(ctx context.Context, tx *gorm.DB, transactionID string) (*model.Payment, error) {
	return r.first(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}),
		"external_transaction_id = ?", transactionID)
}

// Transition moves a payment from one status to another together with the
// given fields. The update only applies while the row is still in status
// from; false means another writer got there first.
func (r *paymentRepoImpl) Transition(ctx context.Context, tx *gorm.DB, paymentID uint, from, to model.PaymentStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", paymentID, from).
		Updates(updates)

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *paymentRepoImpl) first(ctx context.Context, q *gorm.DB, query string, args ...interface{}) (*model.Payment, error) {
	var payment model.Payment
	err := q.WithContext(ctx).
		Where(query, args...).
		First(&payment).Error

	if err != nil {
		return nil, err
	}

	return &payment, nil
}
