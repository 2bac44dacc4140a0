package service

import (
	"errors"
	"testing"

	"checkout-engine/internal/client"
	"checkout-engine/internal/model"
	"checkout-engine/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrFetchIsStable(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, "116.00")

	first, err := f.payments.CreateOrFetch(f.ctx, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentInitiated, first.Status)
	assert.Equal(t, model.MethodUnspecified, first.Method)
	assertDec(t, "116.00", first.Amount)
	assert.Equal(t, "KES", first.Currency)

	again, err := f.payments.CreateOrFetch(f.ctx, order.ID, model.MethodManual)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = f.payments.CreateOrFetch(f.ctx, 9999, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrderPaymentDoesNotCreate(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, "20.00")

	_, err := f.payments.GetOrderPayment(f.ctx, order.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var n int64
	require.NoError(t, f.db.Model(&model.Payment{}).Count(&n).Error)
	assert.Zero(t, n)

	created, err := f.payments.CreateOrFetch(f.ctx, order.ID, "")
	require.NoError(t, err)
	got, err := f.payments.GetOrderPayment(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestInitiateMobileMoneyPushesOnce(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, "250.00")
	in := MobileMoneyInput{OrderID: order.ID, Provider: "mpesa", Channel: "stk", Phone: "0712345678"}

	first, err := f.payments.InitiateMobileMoney(f.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, first.Status)
	assert.Equal(t, client.ProviderMpesa, first.Provider)
	assert.Equal(t, "STK", first.Channel)
	require.NotNil(t, first.ExternalRequestID)
	require.NotNil(t, first.ProviderRef)
	assert.Equal(t, "ws_CO_"+*first.ExternalRequestID, *first.ProviderRef)
	assert.Equal(t, "ORDER-"+uintStr(order.ID), first.AccountReference)

	second, err := f.payments.InitiateMobileMoney(f.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.mpesa.pushCount())

	f.mpesa.mu.Lock()
	push := f.mpesa.pushes[0]
	f.mpesa.mu.Unlock()
	assert.Equal(t, *first.ExternalRequestID, push.RequestID)
	assertDec(t, "250.00", push.Amount)
	require.NotNil(t, first.RequestedAmount)
	assertDec(t, "250", *first.RequestedAmount)
}

func TestInitiateMobileMoneyRecordsRoundedPushAmount(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, "99.50")

	p, err := f.payments.InitiateMobileMoney(f.ctx, MobileMoneyInput{OrderID: order.ID, Provider: "MPESA", Channel: "STK", Phone: "0712345678"})
	require.NoError(t, err)

	stored := f.reloadPayment(t, p.ID)
	assertDec(t, "99.50", stored.Amount)
	require.NotNil(t, stored.RequestedAmount)
	assertDec(t, "100", *stored.RequestedAmount)
}

func TestInitiateMobileMoneyRejectsUnknownProvider(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, "30.00")

	_, err := f.payments.InitiateMobileMoney(f.ctx, MobileMoneyInput{OrderID: order.ID, Provider: "TKASH", Channel: "STK", Phone: "0712345678"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "provider", vErr.Field)

	var n int64
	require.NoError(t, f.db.Model(&model.Payment{}).Where("order_id = ?", order.ID).Count(&n).Error)
	assert.Zero(t, n)

	// a provider with no gateway is still accepted when an active option offers it
	f.option(t, model.PaymentOption{Code: "bank", Name: "Bank", Provider: "BANK", IsActive: true})
	p, err := f.payments.InitiateMobileMoney(f.ctx, MobileMoneyInput{OrderID: order.ID, Provider: "bank", Channel: "TRANSFER", Phone: "0712345678"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentInitiated, p.Status)
}

func TestInitiateMobileMoneyWithoutPush(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, "99.00")

	p, err := f.payments.InitiateMobileMoney(f.ctx, MobileMoneyInput{OrderID: order.ID, Provider: "MPESA", Channel: "PAYBILL", Phone: "0712345678"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentInitiated, p.Status)
	assert.Nil(t, p.ExternalRequestID)
	assert.Zero(t, f.mpesa.pushCount())

	// a different channel is a separate attempt
	stk, err := f.payments.InitiateMobileMoney(f.ctx, MobileMoneyInput{OrderID: order.ID, Provider: "MPESA", Channel: "STK", Phone: "0712345678"})
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, stk.ID)
}

func TestInitiateMobileMoneyProviderDown(t *testing.T) {
	f := newFixture(t)
	f.airtel.err = errors.New("connection refused")
	order := f.order(t, "40.00")

	p, err := f.payments.InitiateMobileMoney(f.ctx, MobileMoneyInput{OrderID: order.ID, Provider: "AIRTEL", Channel: "USSD_PUSH", Phone: "0733000000"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	require.NotNil(t, p)

	stored := f.reloadPayment(t, p.ID)
	assert.Equal(t, model.PaymentInitiated, stored.Status)
	assert.NotNil(t, stored.ExternalRequestID)
	assert.Nil(t, stored.ProviderRef)
}

func TestInitiateMobileMoneyValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.payments.InitiateMobileMoney(f.ctx, MobileMoneyInput{OrderID: 1, Provider: "MPESA", Channel: "STK"})
	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "phone", valErr.Field)

	_, err = f.payments.InitiateMobileMoney(f.ctx, MobileMoneyInput{OrderID: 404, Provider: "MPESA", Channel: "STK", Phone: "0712"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInitiateMobileMoneyReturnsSucceededPayment(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, "75.00")

	paid, err := f.payments.InitiateMobileMoney(f.ctx, MobileMoneyInput{OrderID: order.ID, Provider: "MPESA", Channel: "PAYBILL", Phone: "0712345678"})
	require.NoError(t, err)
	_, err = f.payments.AdminConfirm(f.ctx, AdminConfirmInput{PaymentID: paid.ID, ExternalTransactionID: "QK1"})
	require.NoError(t, err)

	p, err := f.payments.InitiateMobileMoney(f.ctx, MobileMoneyInput{OrderID: order.ID, Provider: "MPESA", Channel: "STK", Phone: "0712345678"})
	require.NoError(t, err)
	assert.Equal(t, paid.ID, p.ID)
	assert.Equal(t, model.PaymentSuccess, p.Status)
	assert.Zero(t, f.mpesa.pushCount())
}

func TestInitiateManual(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, "500.00")
	paybill := f.option(t, model.PaymentOption{Code: "mpesa-paybill", Name: "Paybill", Provider: "MPESA", Channel: "PAYBILL", AccountReferenceTemplate: "INV{order_id}-{phone}", IsActive: true})
	bank := f.option(t, model.PaymentOption{Code: "bank", Name: "Bank", Provider: "BANK", IsActive: false})

	p, err := f.payments.InitiateManual(f.ctx, ManualInput{OrderID: order.ID, PaymentOptionID: paybill.ID, Phone: "+254 712 345 678"})
	require.NoError(t, err)
	assert.Equal(t, model.MethodManual, p.Method)
	assert.Equal(t, "PAYBILL", p.Channel)
	assert.Equal(t, "MPESA", p.Provider)
	assert.Equal(t, "INV"+uintStr(order.ID)+"-254712345678", p.AccountReference)
	require.NotNil(t, p.PaymentOptionID)
	assert.Equal(t, paybill.ID, *p.PaymentOptionID)

	again, err := f.payments.InitiateManual(f.ctx, ManualInput{OrderID: order.ID, PaymentOptionID: paybill.ID, Phone: "0712345678", AccountReference: "OTHER"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	_, err = f.payments.InitiateManual(f.ctx, ManualInput{OrderID: order.ID, PaymentOptionID: bank.ID, Phone: "0712345678"})
	assert.ErrorIs(t, err, ErrPaymentOptionInactive)

	_, err = f.payments.InitiateManual(f.ctx, ManualInput{OrderID: order.ID, PaymentOptionID: 999, Phone: "0712345678"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcileManualMatchesLastDigits(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, "300.00")
	opt := f.option(t, model.PaymentOption{Code: "paybill", Name: "Paybill", Provider: "MPESA", Channel: "PAYBILL", IsActive: true})
	p, err := f.payments.InitiateManual(f.ctx, ManualInput{OrderID: order.ID, PaymentOptionID: opt.ID, Phone: "0712345678"})
	require.NoError(t, err)

	got, err := f.payments.ReconcileManual(f.ctx, ReconcileInput{OrderID: order.ID, Phone: "+254 712-345-678"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, model.PaymentSuccess, got.Status)
	require.NotNil(t, got.ExternalTransactionID)
	assert.Regexp(t, `^MANUAL-[0-9A-F]{12}$`, *got.ExternalTransactionID)

	assert.Equal(t, model.OrderProcessing, f.reloadOrder(t, order.ID).Status)
	assert.Equal(t, 1, f.sink.count(notify.EventPaymentSucceeded))
}

func TestReconcileManualMismatchLeavesPayment(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, "300.00")
	opt := f.option(t, model.PaymentOption{Code: "paybill", Name: "Paybill", Provider: "MPESA", Channel: "PAYBILL", IsActive: true})
	p, err := f.payments.InitiateManual(f.ctx, ManualInput{OrderID: order.ID, PaymentOptionID: opt.ID, Phone: "0712345678"})
	require.NoError(t, err)

	got, err := f.payments.ReconcileManual(f.ctx, ReconcileInput{PaymentID: p.ID, Phone: "0712000000"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentInitiated, got.Status)

	wrong := dec("299.99")
	got, err = f.payments.ReconcileManual(f.ctx, ReconcileInput{PaymentID: p.ID, Phone: "0712345678", Amount: &wrong})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentInitiated, got.Status)

	right := dec("300")
	got, err = f.payments.ReconcileManual(f.ctx, ReconcileInput{PaymentID: p.ID, Phone: "0712345678", Amount: &right})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentSuccess, got.Status)

	_, err = f.payments.ReconcileManual(f.ctx, ReconcileInput{PaymentID: 12345, Phone: "0712345678"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminConfirm(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, "120.00")
	p, err := f.payments.InitiateMobileMoney(f.ctx, MobileMoneyInput{OrderID: order.ID, Provider: "MPESA", Channel: "STK", Phone: "0712345678"})
	require.NoError(t, err)
	require.Equal(t, model.PaymentPending, p.Status)

	got, err := f.payments.AdminConfirm(f.ctx, AdminConfirmInput{PaymentID: p.ID, ExternalTransactionID: "QKA12345"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentSuccess, got.Status)
	assert.Equal(t, "QKA12345", *got.ExternalTransactionID)
	assert.Equal(t, model.OrderProcessing, f.reloadOrder(t, order.ID).Status)

	// confirming again is a no-op, even with force
	again, err := f.payments.AdminConfirm(f.ctx, AdminConfirmInput{PaymentID: p.ID, ExternalTransactionID: "OTHER", Force: true})
	require.NoError(t, err)
	assert.Equal(t, "QKA12345", *again.ExternalTransactionID)
	assert.Equal(t, 1, f.sink.count(notify.EventPaymentSucceeded))

	_, err = f.payments.AdminConfirm(f.ctx, AdminConfirmInput{PaymentID: 777})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminConfirmTransactionID(t *testing.T) {
	f := newFixture(t)

	newPayment := func(existing string) *model.Payment {
		order := f.order(t, "10.00")
		p, err := f.payments.CreateOrFetch(f.ctx, order.ID, "")
		require.NoError(t, err)
		if existing != "" {
			f.setPayment(t, p.ID, map[string]interface{}{"external_transaction_id": existing})
		}
		return p
	}

	p := newPayment("")
	got, err := f.payments.AdminConfirm(f.ctx, AdminConfirmInput{PaymentID: p.ID})
	require.NoError(t, err)
	assert.Regexp(t, `^ADMIN-[0-9A-F]{12}$`, *got.ExternalTransactionID)

	p = newPayment("KEEP1")
	got, err = f.payments.AdminConfirm(f.ctx, AdminConfirmInput{PaymentID: p.ID, ExternalTransactionID: "NEW1"})
	require.NoError(t, err)
	assert.Equal(t, "KEEP1", *got.ExternalTransactionID)

	p = newPayment("KEEP2")
	got, err = f.payments.AdminConfirm(f.ctx, AdminConfirmInput{PaymentID: p.ID, ExternalTransactionID: "NEW2", Force: true})
	require.NoError(t, err)
	assert.Equal(t, "NEW2", *got.ExternalTransactionID)
}

func TestAdminConfirmRefusesFailedPayment(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, "10.00")
	p, err := f.payments.CreateOrFetch(f.ctx, order.ID, "")
	require.NoError(t, err)
	f.setPayment(t, p.ID, map[string]interface{}{"status": model.PaymentFailed})

	got, err := f.payments.AdminConfirm(f.ctx, AdminConfirmInput{PaymentID: p.ID, Force: true})
	assert.ErrorIs(t, err, ErrPaymentConflict)
	require.NotNil(t, got)
	assert.Equal(t, model.PaymentFailed, got.Status)
	assert.Equal(t, model.OrderPending, f.reloadOrder(t, order.ID).Status)
}

func TestListPaymentOptionsOnlyActive(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.optionRepo.Seed(f.ctx))

	options, err := f.payments.ListPaymentOptions(f.ctx)
	require.NoError(t, err)
	require.Len(t, options, 3)
	for _, o := range options {
		assert.True(t, o.IsActive)
	}
}
