package repository

import (
	"context"
	"errors"

	"checkout-engine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStockUnavailable is returned when a decrement would take stock below zero.
var ErrStockUnavailable = errors.New("stock unavailable")

// InventoryRepository is the row-level view of product stock and price used
// while assembling an order. Every method must run inside the caller's
// transaction. Callers lock several products in ascending id order.
type InventoryRepository interface {
	LockProduct(ctx context.Context, tx *gorm.DB, productID uint) (*model.Product, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uint, quantity int) error
}

type inventoryRepoImpl struct{}

func NewInventoryRepository() InventoryRepository {
	return &inventoryRepoImpl{}
}

func (r *inventoryRepoImpl) LockProduct(ctx context.Context, tx *gorm.DB, productID uint) (*model.Product, error) {
	var product model.Product
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		return nil, err
	}

	return &product, nil
}

func (r *inventoryRepoImpl) DecrementStock(ctx context.Context, tx *gorm.DB, productID uint, quantity int) error {
	result := tx.WithContext(ctx).Model(&model.Product{}).
		Where(`
			id = ?
			AND stock_quantity IS NOT NULL
			AND stock_quantity >= ?
		`,
			productID,
			quantity,
		).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", quantity))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStockUnavailable
	}

	return nil
}
