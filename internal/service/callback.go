package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"checkout-engine/internal/client"
	"checkout-engine/internal/logging"
	"checkout-engine/internal/model"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	CallbackApplied     = "applied"
	CallbackDuplicate   = "duplicate"
	CallbackUnmatched   = "unmatched"
	CallbackUnparseable = "unparseable"

	mpesaSuccessCode = "0"
)

// callbackResult is the provider-neutral reading of a callback body.
type callbackResult struct {
	RequestID    string
	SettlementID string
	Success      bool
}

func parseCallback(provider string, body []byte, airtelSuccess string) (*callbackResult, error) {
	switch strings.ToUpper(provider) {
	case client.ProviderMpesa:
		var cb model.MpesaCallback
		if err := json.Unmarshal(body, &cb); err != nil {
			return nil, fmt.Errorf("decode mpesa callback: %w", err)
		}
		stk := cb.Body.StkCallback
		return &callbackResult{
			RequestID:    stk.CheckoutRequestID,
			SettlementID: cb.MetadataValue("MpesaReceiptNumber"),
			Success:      string(stk.ResultCode) == mpesaSuccessCode,
		}, nil

	case client.ProviderAirtel:
		var cb model.AirtelCallback
		if err := json.Unmarshal(body, &cb); err != nil {
			return nil, fmt.Errorf("decode airtel callback: %w", err)
		}
		return &callbackResult{
			RequestID:    cb.OriginalRequestID,
			SettlementID: cb.TransactionID,
			Success:      cb.StatusCode != "" && string(cb.StatusCode) == airtelSuccess,
		}, nil
	}

	return nil, fmt.Errorf("unknown provider %q", provider)
}

// HandleProviderCallback applies an asynchronous provider result. It never
// reports matching problems to the caller: unmatched callbacks and repeats
// against a terminal payment are recorded and dropped. Only storage
// failures are returned.
func (s *paymentServiceImpl) HandleProviderCallback(ctx context.Context, provider string, body []byte) (err error) {
	provider = strings.ToUpper(provider)
	ctx, span := tracer.Start(ctx, "PaymentService.HandleProviderCallback",
		trace.WithAttributes(attribute.String("payment.provider", provider)))
	defer func() { endSpan(span, err) }()

	logger := logging.FromContext(ctx).With(zap.String("provider", provider))
	audit := &model.ProviderCallback{
		Provider:   provider,
		RawPayload: string(body),
	}

	result, parseErr := parseCallback(provider, body, s.cfg.AirtelSuccessCode)
	if parseErr != nil {
		audit.Outcome = CallbackUnparseable
		logger.Warn("unparseable provider callback", zap.Error(parseErr))
		if err := s.callbackRepo.Record(ctx, s.db, audit); err != nil {
			return fmt.Errorf("record callback: %w", err)
		}
		s.metrics.ProviderCallback(provider, audit.Outcome)
		return nil
	}
	audit.RequestID = result.RequestID

	fx := &effects{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.matchCallback(ctx, tx, result)
		if err != nil {
			return err
		}

		switch {
		case payment == nil:
			audit.Outcome = CallbackUnmatched
		case payment.Status.IsTerminal():
			audit.Outcome = CallbackDuplicate
			audit.PaymentID = &payment.ID
		default:
			audit.Outcome = CallbackApplied
			audit.PaymentID = &payment.ID
			if _, err := s.applyCallback(ctx, tx, fx, payment, result, string(body)); err != nil {
				return err
			}
		}

		return s.callbackRepo.Record(ctx, tx, audit)
	})
	if err != nil {
		return fmt.Errorf("apply %s callback: %w", provider, err)
	}
	s.flush(ctx, fx)
	s.metrics.ProviderCallback(provider, audit.Outcome)

	logger.Info("provider callback handled",
		zap.String("request_id", result.RequestID),
		zap.String("outcome", audit.Outcome),
		zap.Bool("success", result.Success),
	)
	return nil
}

// applyCallback moves a non-terminal payment to the outcome the provider
// reported.
func (s *paymentServiceImpl) applyCallback(ctx context.Context, tx *gorm.DB, fx *effects, payment *model.Payment, result *callbackResult, raw string) (*model.Payment, error) {
	to := model.PaymentFailed
	fields := map[string]interface{}{"raw_callback_payload": raw}
	if result.Success {
		to = model.PaymentSuccess
		if result.SettlementID != "" {
			fields["external_transaction_id"] = result.SettlementID
		}
	}
	return s.transition(ctx, tx, fx, payment, to, fields)
}

// replayEarlyCallbacks applies callbacks that reached us before the
// provider reference from the push acknowledgement was stored. Those were
// recorded as unmatched; the first one settles the payment and any later
// ones become duplicates.
func (s *paymentServiceImpl) replayEarlyCallbacks(ctx context.Context, tx *gorm.DB, fx *effects, payment *model.Payment) (*model.Payment, int, error) {
	if payment.ProviderRef == nil || *payment.ProviderRef == "" {
		return payment, 0, nil
	}

	early, err := s.callbackRepo.ListByRequestID(ctx, tx, *payment.ProviderRef)
	if err != nil {
		return nil, 0, fmt.Errorf("list callbacks: %w", err)
	}

	replayed := 0
	for _, cb := range early {
		if cb.Outcome != CallbackUnmatched || !strings.EqualFold(cb.Provider, payment.Provider) {
			continue
		}
		result, err := parseCallback(cb.Provider, []byte(cb.RawPayload), s.cfg.AirtelSuccessCode)
		if err != nil {
			continue
		}

		outcome := CallbackDuplicate
		if !payment.Status.IsTerminal() {
			payment, err = s.applyCallback(ctx, tx, fx, payment, result, cb.RawPayload)
			if err != nil {
				return nil, 0, err
			}
			outcome = CallbackApplied
			replayed++
		}
		if err := s.callbackRepo.Resolve(ctx, tx, cb.ID, payment.ID, outcome); err != nil {
			return nil, 0, fmt.Errorf("resolve callback %d: %w", cb.ID, err)
		}
	}

	return payment, replayed, nil
}

// matchCallback finds the payment a callback refers to: first by request
// id, then by settlement id. A nil payment means no match.
func (s *paymentServiceImpl) matchCallback(ctx context.Context, tx *gorm.DB, result *callbackResult) (*model.Payment, error) {
	if result.RequestID != "" {
		p, err := s.paymentRepo.LockByRequestID(ctx, tx, result.RequestID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find payment by request id: %w", err)
		}
	}

	if result.SettlementID != "" {
		p, err := s.paymentRepo.LockByTransactionID(ctx, tx, result.SettlementID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find payment by transaction id: %w", err)
		}
	}

	return nil, nil
}
