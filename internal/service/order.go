package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"checkout-engine/internal/logging"
	"checkout-engine/internal/metrics"
	"checkout-engine/internal/model"
	"checkout-engine/internal/notify"
	"checkout-engine/internal/pricing"
	"checkout-engine/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LineItem struct {
	ProductID uint
	Quantity  int
}

type PlaceOrderInput struct {
	CustomerName  string
	CustomerPhone string
	UserID        *string
	Items         []LineItem
	CouponCode    string
}

func (in PlaceOrderInput) identity() model.Identity {
	return model.Identity{UserID: in.UserID, Phone: in.CustomerPhone}
}

type OrderService interface {
	PlaceOrder(ctx context.Context, in PlaceOrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, orderID uint) (*model.Order, error)
}

type orderServiceImpl struct {
	db            *gorm.DB
	vatRate       decimal.Decimal
	inventoryRepo repository.InventoryRepository
	orderRepo     repository.OrderRepository
	couponService CouponService
	sink          notify.Sink
	metrics       *metrics.Metrics
}

func NewOrderService(
	db *gorm.DB,
	vatRate decimal.Decimal,
	inventoryRepo repository.InventoryRepository,
	orderRepo repository.OrderRepository,
	couponService CouponService,
	sink notify.Sink,
	m *metrics.Metrics,
) OrderService {
	return &orderServiceImpl{
		db:            db,
		vatRate:       vatRate,
		inventoryRepo: inventoryRepo,
		orderRepo:     orderRepo,
		couponService: couponService,
		sink:          sink,
		metrics:       m,
	}
}

// normalizeLines validates the requested lines, merges repeated products
// and sorts by ascending product id, which is the lock order every
// checkout uses.
func normalizeLines(items []LineItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, invalid("items", "at least one item is required")
	}

	qty := make(map[uint]int, len(items))
	for _, item := range items {
		if item.ProductID == 0 {
			return nil, invalid("items.product_id", "must be set")
		}
		if item.Quantity <= 0 {
			return nil, invalid("items.quantity", "must be positive")
		}
		qty[item.ProductID] += item.Quantity
	}

	lines := make([]LineItem, 0, len(qty))
	for id, q := range qty {
		lines = append(lines, LineItem{ProductID: id, Quantity: q})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (s *orderServiceImpl) PlaceOrder(ctx context.Context, in PlaceOrderInput) (_ *model.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.PlaceOrder",
		trace.WithAttributes(attribute.Int("order.lines", len(in.Items))))
	defer func() {
		s.metrics.OrderPlaced(orderOutcome(err))
		endSpan(span, err)
	}()

	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	in.CouponCode = strings.TrimSpace(in.CouponCode)
	if in.CustomerName == "" {
		return nil, invalid("customer_name", "is required")
	}
	if in.CustomerPhone == "" {
		return nil, invalid("customer_phone", "is required")
	}
	lines, err := normalizeLines(in.Items)
	if err != nil {
		return nil, err
	}

	identity := in.identity()
	var order *model.Order

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var totals pricing.Totals
		items := make([]*model.OrderItem, 0, len(lines))

		for _, line := range lines {
			product, err := s.inventoryRepo.LockProduct(ctx, tx, line.ProductID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFound("product", line.ProductID)
				}
				return fmt.Errorf("lock product %d: %w", line.ProductID, err)
			}

			if product.TracksStock() {
				if *product.StockQuantity < line.Quantity {
					return &InsufficientStockError{ProductID: product.ID, Requested: line.Quantity, Available: *product.StockQuantity}
				}
				if err := s.inventoryRepo.DecrementStock(ctx, tx, product.ID, line.Quantity); err != nil {
					if errors.Is(err, repository.ErrStockUnavailable) {
						return &InsufficientStockError{ProductID: product.ID, Requested: line.Quantity, Available: *product.StockQuantity}
					}
					return fmt.Errorf("decrement stock of product %d: %w", product.ID, err)
				}
			}

			unitNet, unitVat := pricing.SplitGross(product.GrossPrice, s.vatRate)
			totals.AddLine(product.GrossPrice, unitNet, unitVat, line.Quantity)

			items = append(items, &model.OrderItem{
				ProductID:      product.ID,
				Quantity:       line.Quantity,
				UnitPriceGross: pricing.Round(product.GrossPrice),
				UnitPriceNet:   pricing.Round(unitNet),
				VatAmount:      pricing.Round(unitVat),
			})
		}

		var coupon *model.Coupon
		discount := decimal.Zero
		if in.CouponCode != "" {
			var err error
			coupon, discount, err = s.couponService.Validate(ctx, tx, in.CouponCode, totals.Gross, identity)
			if err != nil {
				return err
			}
		}

		final := totals.Final(discount)
		order = &model.Order{
			CustomerName:   in.CustomerName,
			CustomerPhone:  in.CustomerPhone,
			UserID:         in.UserID,
			Status:         model.OrderPending,
			TotalGross:     final.Gross,
			TotalNet:       final.Net,
			VatAmount:      final.Vat,
			DiscountAmount: final.Discount,
		}
		if coupon != nil {
			code := coupon.Code
			order.CouponID = &coupon.ID
			order.CouponCode = &code
		}

		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("store order: %w", err)
		}
		for _, item := range items {
			item.OrderID = order.ID
		}
		if err := s.orderRepo.CreateOrderItems(ctx, tx, items); err != nil {
			return fmt.Errorf("store order items: %w", err)
		}

		if coupon != nil && final.Discount.IsPositive() {
			if err := s.couponService.RecordRedemption(ctx, tx, coupon, final.Discount, &order.ID, identity); err != nil {
				return err
			}
		}

		order.Items = make([]model.OrderItem, len(items))
		for i, item := range items {
			order.Items[i] = *item
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", int64(order.ID)))
	logger := logging.FromContext(ctx)
	logger.Info("order placed",
		zap.Uint("order_id", order.ID),
		zap.String("total_gross", order.TotalGross.StringFixed(2)),
		zap.String("discount", order.DiscountAmount.StringFixed(2)),
	)

	if s.sink != nil {
		if err := s.sink.Publish(ctx, notify.OrderCreated(order)); err != nil {
			logger.Warn("publish order created", zap.Uint("order_id", order.ID), zap.Error(err))
		}
	}

	return order, nil
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, orderID uint) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("order", orderID)
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return order, nil
}

func orderOutcome(err error) string {
	var (
		stockErr *InsufficientStockError
		cErr     *CouponError
		valErr   *ValidationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.As(err, &cErr):
		return "coupon_rejected"
	case errors.As(err, &valErr):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "error"
}
