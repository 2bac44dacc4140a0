package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"checkout-engine/internal/client"
	"checkout-engine/internal/logging"
	"checkout-engine/internal/metrics"
	"checkout-engine/internal/model"
	"checkout-engine/internal/notify"
	"checkout-engine/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MobileMoneyInput struct {
	OrderID  uint
	Provider string
	Channel  string
	Phone    string
}

type ManualInput struct {
	OrderID          uint
	PaymentOptionID  uint
	Phone            string
	AccountReference string
}

// ReconcileInput identifies a payment by PaymentID, or by OrderID when
// PaymentID is zero.
type ReconcileInput struct {
	OrderID   uint
	PaymentID uint
	Phone     string
	Amount    *decimal.Decimal
}

type AdminConfirmInput struct {
	PaymentID             uint
	ExternalTransactionID string
	Force                 bool
}

// PaymentService drives a payment from INITIATED to one terminal outcome.
// Every entry point is idempotent; repeated calls against a terminal
// payment leave it untouched.
type PaymentService interface {
	CreateOrFetch(ctx context.Context, orderID uint, method string) (*model.Payment, error)
	InitiateMobileMoney(ctx context.Context, in MobileMoneyInput) (*model.Payment, error)
	InitiateManual(ctx context.Context, in ManualInput) (*model.Payment, error)
	HandleProviderCallback(ctx context.Context, provider string, body []byte) error
	ReconcileManual(ctx context.Context, in ReconcileInput) (*model.Payment, error)
	AdminConfirm(ctx context.Context, in AdminConfirmInput) (*model.Payment, error)
	GetPayment(ctx context.Context, paymentID uint) (*model.Payment, error)
	GetOrderPayment(ctx context.Context, orderID uint) (*model.Payment, error)
	ListPaymentOptions(ctx context.Context) ([]*model.PaymentOption, error)
}

type PaymentConfig struct {
	Currency          string
	AirtelSuccessCode string
}

type paymentServiceImpl struct {
	db           *gorm.DB
	cfg          PaymentConfig
	gateways     client.Gateways
	orderRepo    repository.OrderRepository
	paymentRepo  repository.PaymentRepository
	optionRepo   repository.PaymentOptionRepository
	callbackRepo repository.ProviderCallbackRepository
	sink         notify.Sink
	metrics      *metrics.Metrics
	newID        func() string
}

func NewPaymentService(
	db *gorm.DB,
	cfg PaymentConfig,
	gateways client.Gateways,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	optionRepo repository.PaymentOptionRepository,
	callbackRepo repository.ProviderCallbackRepository,
	sink notify.Sink,
	m *metrics.Metrics,
) PaymentService {
	return &paymentServiceImpl{
		db:           db,
		cfg:          cfg,
		gateways:     gateways,
		orderRepo:    orderRepo,
		paymentRepo:  paymentRepo,
		optionRepo:   optionRepo,
		callbackRepo: callbackRepo,
		sink:         sink,
		metrics:      m,
		newID:        uuid.NewString,
	}
}

// effects collects what a transaction did so it can be reported once the
// transaction has committed.
type effects struct {
	transitions [][2]model.PaymentStatus
	succeeded   *model.Payment
}

func (s *paymentServiceImpl) flush(ctx context.Context, fx *effects) {
	for _, t := range fx.transitions {
		s.metrics.PaymentTransition(string(t[0]), string(t[1]))
	}
	if fx.succeeded == nil {
		return
	}

	logger := logging.FromContext(ctx)
	logger.Info("payment succeeded",
		zap.Uint("payment_id", fx.succeeded.ID),
		zap.Uint("order_id", fx.succeeded.OrderID),
	)
	if s.sink != nil {
		if err := s.sink.Publish(ctx, notify.PaymentSucceeded(fx.succeeded)); err != nil {
			logger.Warn("publish payment succeeded", zap.Uint("payment_id", fx.succeeded.ID), zap.Error(err))
		}
	}
}

// transition moves p to status `to` inside tx and, for SUCCESS, advances
// the order from PENDING to PROCESSING. The returned payment is re-read
// from tx.
func (s *paymentServiceImpl) transition(ctx context.Context, tx *gorm.DB, fx *effects, p *model.Payment, to model.PaymentStatus, fields map[string]interface{}) (*model.Payment, error) {
	if !p.Status.CanTransitionTo(to) {
		return p, ErrPaymentConflict
	}

	ok, err := s.paymentRepo.Transition(ctx, tx, p.ID, p.Status, to, fields)
	if err != nil {
		return nil, fmt.Errorf("transition payment %d to %s: %w", p.ID, to, err)
	}
	if !ok {
		return p, ErrPaymentConflict
	}
	fx.transitions = append(fx.transitions, [2]model.PaymentStatus{p.Status, to})

	updated, err := s.paymentRepo.LockByID(ctx, tx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("reload payment %d: %w", p.ID, err)
	}

	if to == model.PaymentSuccess {
		advanced, err := s.orderRepo.MarkProcessing(ctx, tx, p.OrderID)
		if err != nil {
			return nil, fmt.Errorf("advance order %d: %w", p.OrderID, err)
		}
		if advanced {
			fx.succeeded = updated
		}
	}

	return updated, nil
}

func (s *paymentServiceImpl) lockOrder(ctx context.Context, tx *gorm.DB, orderID uint) (*model.Order, error) {
	order, err := s.orderRepo.LockByID(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("order", orderID)
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return order, nil
}

// existing returns a payment that makes a new attempt for (order, channel)
// unnecessary: one that already succeeded, or the open one on this channel.
func (s *paymentServiceImpl) existing(ctx context.Context, tx *gorm.DB, orderID uint, channel string) (*model.Payment, error) {
	p, err := s.paymentRepo.FindSucceeded(ctx, tx, orderID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	p, err = s.paymentRepo.FindOpen(ctx, tx, orderID, channel)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return nil, nil
}

func (s *paymentServiceImpl) newPayment(order *model.Order, method string) *model.Payment {
	return &model.Payment{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Amount:      order.TotalGross,
		Currency:    s.cfg.Currency,
		Method:      method,
		PhoneNumber: order.CustomerPhone,
		Status:      model.PaymentInitiated,
	}
}

func (s *paymentServiceImpl) CreateOrFetch(ctx context.Context, orderID uint, method string) (*model.Payment, error) {
	if method == "" {
		method = model.MethodUnspecified
	}

	var payment *model.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		payment, err = s.paymentRepo.FindForOrder(ctx, tx, orderID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find payment: %w", err)
		}

		payment = s.newPayment(order, method)
		return s.paymentRepo.Create(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}

	return payment, nil
}

func (s *paymentServiceImpl) InitiateMobileMoney(ctx context.Context, in MobileMoneyInput) (_ *model.Payment, err error) {
	ctx, span := tracer.Start(ctx, "PaymentService.InitiateMobileMoney",
		trace.WithAttributes(
			attribute.Int64("order.id", int64(in.OrderID)),
			attribute.String("payment.provider", in.Provider),
			attribute.String("payment.channel", in.Channel),
		))
	defer func() { endSpan(span, err) }()

	in.Provider = strings.ToUpper(strings.TrimSpace(in.Provider))
	in.Channel = strings.ToUpper(strings.TrimSpace(in.Channel))
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Provider == "" {
		return nil, invalid("provider", "is required")
	}
	if in.Channel == "" {
		return nil, invalid("channel", "is required")
	}
	if in.Phone == "" {
		return nil, invalid("phone", "is required")
	}
	if err := s.checkProvider(ctx, in.Provider); err != nil {
		return nil, err
	}
	supportsPush := s.gateways.SupportsPush(in.Provider, in.Channel)

	var (
		payment *model.Payment
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrder(ctx, tx, in.OrderID)
		if err != nil {
			return err
		}

		payment, err = s.existing(ctx, tx, order.ID, in.Channel)
		if err != nil {
			return fmt.Errorf("find payment: %w", err)
		}
		if payment != nil {
			return nil
		}

		payment = s.newPayment(order, model.MethodMobileMoney)
		payment.Provider = in.Provider
		payment.Channel = in.Channel
		payment.PhoneNumber = in.Phone
		payment.AccountReference = "ORDER-" + strconv.FormatUint(uint64(order.ID), 10)
		if supportsPush {
			// set before the provider is called so a late callback can
			// always be matched, even if we crash before storing the ack
			requestID := s.newID()
			payment.ExternalRequestID = &requestID
		}

		created = true
		return s.paymentRepo.Create(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}

	if !created || !supportsPush {
		return payment, nil
	}

	return s.push(ctx, payment)
}

// checkProvider accepts a provider with a configured gateway or at least
// one active payment option.
func (s *paymentServiceImpl) checkProvider(ctx context.Context, provider string) error {
	if _, ok := s.gateways.Lookup(provider); ok {
		return nil
	}

	options, err := s.optionRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list payment options: %w", err)
	}
	for _, o := range options {
		if strings.EqualFold(o.Provider, provider) {
			return nil
		}
	}
	return invalid("provider", "unsupported provider "+provider)
}

// push runs after the initiating row has committed; no lock is held while
// the provider is on the wire.
func (s *paymentServiceImpl) push(ctx context.Context, payment *model.Payment) (*model.Payment, error) {
	logger := logging.FromContext(ctx).With(
		zap.Uint("payment_id", payment.ID),
		zap.String("provider", payment.Provider),
	)

	gateway, _ := s.gateways.Lookup(payment.Provider)
	ack, err := gateway.Push(ctx, client.PushRequest{
		RequestID:        *payment.ExternalRequestID,
		Phone:            payment.PhoneNumber,
		Amount:           payment.Amount,
		AccountReference: payment.AccountReference,
		Description:      "Order " + strconv.FormatUint(uint64(payment.OrderID), 10),
	})
	if err != nil {
		logger.Warn("push payment request failed", zap.Error(err))
		return payment, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	fx := &effects{}
	replayed := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.paymentRepo.LockByID(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if current.Status != model.PaymentInitiated {
			// a callback resolved it first
			payment = current
			return nil
		}

		fields := map[string]interface{}{
			"provider_ref":        ack.ProviderRef,
			"raw_request_payload": ack.RawRequest,
		}
		if ack.Amount.IsPositive() {
			fields["requested_amount"] = ack.Amount
		}
		payment, err = s.transition(ctx, tx, fx, current, model.PaymentPending, fields)
		if err != nil {
			return err
		}

		payment, replayed, err = s.replayEarlyCallbacks(ctx, tx, fx, payment)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store push acknowledgement: %w", err)
	}
	s.flush(ctx, fx)

	logger.Info("push payment requested",
		zap.String("provider_ref", ack.ProviderRef),
		zap.Int("early_callbacks_applied", replayed),
	)
	return payment, nil
}

func accountReference(option *model.PaymentOption, orderID uint, phone string) string {
	id := strconv.FormatUint(uint64(orderID), 10)
	if option.AccountReferenceTemplate == "" {
		return "ORDER-" + id
	}
	return strings.NewReplacer("{order_id}", id, "{phone}", digitsOnly(phone)).
		Replace(option.AccountReferenceTemplate)
}

func (s *paymentServiceImpl) InitiateManual(ctx context.Context, in ManualInput) (*model.Payment, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	if in.PaymentOptionID == 0 {
		return nil, invalid("payment_option_id", "is required")
	}
	if in.Phone == "" {
		return nil, invalid("phone", "is required")
	}

	option, err := s.optionRepo.FindByID(ctx, in.PaymentOptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("payment option", in.PaymentOptionID)
		}
		return nil, fmt.Errorf("find payment option: %w", err)
	}
	if !option.IsActive {
		return nil, ErrPaymentOptionInactive
	}
	channel := option.PaymentChannel()

	var payment *model.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrder(ctx, tx, in.OrderID)
		if err != nil {
			return err
		}

		payment, err = s.existing(ctx, tx, order.ID, channel)
		if err != nil {
			return fmt.Errorf("find payment: %w", err)
		}
		if payment != nil {
			return nil
		}

		ref := strings.TrimSpace(in.AccountReference)
		if ref == "" {
			ref = accountReference(option, order.ID, in.Phone)
		}

		payment = s.newPayment(order, model.MethodManual)
		payment.Provider = option.Provider
		payment.Channel = channel
		payment.PhoneNumber = in.Phone
		payment.PaymentOptionID = &option.ID
		payment.AccountReference = ref
		return s.paymentRepo.Create(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}

	return payment, nil
}

func (s *paymentServiceImpl) synthesizeTransactionID(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(s.newID(), "-", "")[:12])
}

// ReconcileManual confirms an INITIATED payment when the customer proves
// it with their phone number (and optionally the amount). A mismatch, or a
// payment in any other status, is returned unchanged.
func (s *paymentServiceImpl) ReconcileManual(ctx context.Context, in ReconcileInput) (*model.Payment, error) {
	if in.PaymentID == 0 && in.OrderID == 0 {
		return nil, invalid("payment_id", "payment_id or order_id is required")
	}
	if strings.TrimSpace(in.Phone) == "" {
		return nil, invalid("phone", "is required")
	}

	var payment *model.Payment
	fx := &effects{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if in.PaymentID != 0 {
			payment, err = s.paymentRepo.LockByID(ctx, tx, in.PaymentID)
		} else {
			payment, err = s.paymentRepo.FindInitiatedForOrder(ctx, tx, in.OrderID)
		}
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if in.PaymentID != 0 {
					return notFound("payment", in.PaymentID)
				}
				return notFound("payment for order", in.OrderID)
			}
			return fmt.Errorf("find payment: %w", err)
		}

		if payment.Status != model.PaymentInitiated {
			return nil
		}
		if !phonesMatch(payment.PhoneNumber, in.Phone) {
			return nil
		}
		if in.Amount != nil && !in.Amount.Equal(payment.Amount) {
			return nil
		}

		fields := map[string]interface{}{}
		if payment.ExternalTransactionID == nil {
			fields["external_transaction_id"] = s.synthesizeTransactionID("MANUAL")
		}
		payment, err = s.transition(ctx, tx, fx, payment, model.PaymentSuccess, fields)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, fx)

	return payment, nil
}

// AdminConfirm forces an INITIATED or PENDING payment to SUCCESS. A
// supplied transaction id is used unless the payment already has one;
// Force replaces an existing id.
func (s *paymentServiceImpl) AdminConfirm(ctx context.Context, in AdminConfirmInput) (*model.Payment, error) {
	var payment *model.Payment
	fx := &effects{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = s.paymentRepo.LockByID(ctx, tx, in.PaymentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("payment", in.PaymentID)
			}
			return fmt.Errorf("lock payment: %w", err)
		}

		if payment.Status == model.PaymentSuccess {
			return nil
		}

		fields := map[string]interface{}{}
		txnID := strings.TrimSpace(in.ExternalTransactionID)
		switch {
		case txnID != "" && (payment.ExternalTransactionID == nil || in.Force):
			fields["external_transaction_id"] = txnID
		case payment.ExternalTransactionID == nil:
			fields["external_transaction_id"] = s.synthesizeTransactionID("ADMIN")
		}

		payment, err = s.transition(ctx, tx, fx, payment, model.PaymentSuccess, fields)
		return err
	})
	if err != nil {
		return payment, err
	}
	s.flush(ctx, fx)

	return payment, nil
}

func (s *paymentServiceImpl) GetPayment(ctx context.Context, paymentID uint) (*model.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("payment", paymentID)
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return payment, nil
}

// GetOrderPayment returns the payment CreateOrFetch would return, without
// creating one.
func (s *paymentServiceImpl) GetOrderPayment(ctx context.Context, orderID uint) (*model.Payment, error) {
	payment, err := s.paymentRepo.FindForOrder(ctx, s.db, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("payment for order", orderID)
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return payment, nil
}

func (s *paymentServiceImpl) ListPaymentOptions(ctx context.Context) ([]*model.PaymentOption, error) {
	return s.optionRepo.ListActive(ctx)
}
