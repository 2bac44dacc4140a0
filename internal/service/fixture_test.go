package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"checkout-engine/internal/client"
	"checkout-engine/internal/config"
	"checkout-engine/internal/metrics"
	"checkout-engine/internal/model"
	"checkout-engine/internal/notify"
	"checkout-engine/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func uintStr(v uint) string { return strconv.FormatUint(uint64(v), 10) }

type fakeGateway struct {
	mu       sync.Mutex
	provider string
	channel  string
	err      error
	pushes   []client.PushRequest
	// onPush runs before the ack is returned, as a provider whose callback
	// outruns its own synchronous response would.
	onPush func(ack *client.PushAck)
}

func (g *fakeGateway) Provider() string { return g.provider }

func (g *fakeGateway) SupportsPush(channel string) bool { return channel == g.channel }

func (g *fakeGateway) Push(ctx context.Context, req client.PushRequest) (*client.PushAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushes = append(g.pushes, req)
	if g.err != nil {
		return nil, g.err
	}
	ack := &client.PushAck{
		ProviderRef: "ws_CO_" + req.RequestID,
		RawRequest:  `{"Amount":1}`,
		Amount:      req.Amount.Ceil(),
	}
	if g.onPush != nil {
		g.onPush(ack)
	}
	return ack, nil
}

func (g *fakeGateway) pushCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pushes)
}

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *recordingSink) Publish(ctx context.Context, event notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	ctx context.Context
	db  *gorm.DB
	now time.Time

	products    repository.ProductRepository
	couponRepo  repository.CouponRepository
	optionRepo  repository.PaymentOptionRepository
	paymentRepo repository.PaymentRepository
	orderRepo   repository.OrderRepository
	callbacks   repository.ProviderCallbackRepository

	coupons  *couponServiceImpl
	orders   OrderService
	payments *paymentServiceImpl

	mpesa   *fakeGateway
	airtel  *fakeGateway
	sink    *recordingSink
	metrics *metrics.Metrics
	ids     int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := client.InitDatabase(config.Database{
		Driver: "sqlite",
		URL:    filepath.Join(t.TempDir(), "checkout.db"),
	})
	require.NoError(t, err)
	require.NoError(t, client.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		ctx:         context.Background(),
		db:          db,
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		products:    repository.NewProductRepository(db),
		couponRepo:  repository.NewCouponRepository(db),
		optionRepo:  repository.NewPaymentOptionRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		orderRepo:   repository.NewOrderRepository(db),
		callbacks:   repository.NewProviderCallbackRepository(db),
		mpesa:       &fakeGateway{provider: client.ProviderMpesa, channel: "STK"},
		airtel:      &fakeGateway{provider: client.ProviderAirtel, channel: "USSD_PUSH"},
		sink:        &recordingSink{},
		metrics:     metrics.New(prometheus.NewRegistry()),
	}

	f.coupons = NewCouponService(db, f.couponRepo).(*couponServiceImpl)
	f.coupons.now = func() time.Time { return f.now }

	f.orders = NewOrderService(db, dec("0.16"), repository.NewInventoryRepository(), f.orderRepo, f.coupons, f.sink, f.metrics)

	f.payments = NewPaymentService(db,
		PaymentConfig{Currency: "KES", AirtelSuccessCode: "TS"},
		client.NewGateways(f.mpesa, f.airtel),
		f.orderRepo, f.paymentRepo, f.optionRepo, f.callbacks,
		f.sink, f.metrics,
	).(*paymentServiceImpl)
	f.payments.newID = func() string {
		f.ids++
		return fmt.Sprintf("%08x-%04x-4000-8000-000000000000", f.ids, f.ids)
	}

	return f
}

func (f *fixture) product(t *testing.T, price string, stock *int) *model.Product {
	t.Helper()
	p := &model.Product{Name: "item " + price, GrossPrice: dec(price), StockQuantity: stock}
	require.NoError(t, f.products.Create(f.ctx, p))
	return p
}

func (f *fixture) coupon(t *testing.T, c model.Coupon) *model.Coupon {
	t.Helper()
	require.NoError(t, f.couponRepo.Create(f.ctx, &c))
	return &c
}

func (f *fixture) option(t *testing.T, o model.PaymentOption) *model.PaymentOption {
	t.Helper()
	require.NoError(t, f.optionRepo.Create(f.ctx, &o))
	return &o
}

// order places a one-line order for a fresh product priced at price.
func (f *fixture) order(t *testing.T, price string) *model.Order {
	t.Helper()
	p := f.product(t, price, nil)
	order, err := f.orders.PlaceOrder(f.ctx, PlaceOrderInput{
		CustomerName:  "Wanjiku",
		CustomerPhone: "0712345678",
		Items:         []LineItem{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) reloadOrder(t *testing.T, id uint) *model.Order {
	t.Helper()
	order, err := f.orderRepo.FindByID(f.ctx, id)
	require.NoError(t, err)
	return order
}

func (f *fixture) reloadPayment(t *testing.T, id uint) *model.Payment {
	t.Helper()
	p, err := f.paymentRepo.FindByID(f.ctx, id)
	require.NoError(t, err)
	return p
}

// setPayment writes columns directly, bypassing the status machine.
func (f *fixture) setPayment(t *testing.T, id uint, fields map[string]interface{}) {
	t.Helper()
	require.NoError(t, f.db.Model(&model.Payment{}).Where("id = ?", id).Updates(fields).Error)
}
