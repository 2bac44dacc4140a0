// Package notify delivers checkout events to collaborators outside the
// core (messaging, analytics). Delivery is best effort: callers log a
// failed delivery and carry on.
package notify

import (
	"context"
	"time"

	"checkout-engine/internal/model"

	"go.uber.org/zap"
)

const (
	EventOrderCreated     = "order.created"
	EventPaymentSucceeded = "payment.succeeded"
)

type Event struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Order      *model.Order   `json:"order,omitempty"`
	Payment    *model.Payment `json:"payment,omitempty"`
}

type Sink interface {
	Publish(ctx context.Context, event Event) error
}

func OrderCreated(order *model.Order) Event {
	return Event{Type: EventOrderCreated, OccurredAt: time.Now().UTC(), Order: order}
}

func PaymentSucceeded(payment *model.Payment) Event {
	return Event{Type: EventPaymentSucceeded, OccurredAt: time.Now().UTC(), Payment: payment}
}

type logSink struct {
	logger *zap.Logger
}

// NewLogSink writes events to the structured log only.
func NewLogSink(logger *zap.Logger) Sink {
	return &logSink{logger: logger}
}

func (s *logSink) Publish(ctx context.Context, event Event) error {
	fields := []zap.Field{zap.String("event", event.Type)}
	if event.Order != nil {
		fields = append(fields, zap.Uint("order_id", event.Order.ID), zap.String("total_gross", event.Order.TotalGross.StringFixed(2)))
	}
	if event.Payment != nil {
		fields = append(fields, zap.Uint("payment_id", event.Payment.ID), zap.Uint("order_id", event.Payment.OrderID))
	}
	s.logger.Info("checkout event", fields...)
	return nil
}

type multiSink []Sink

// Fanout publishes to every sink and returns the first error.
func Fanout(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) Publish(ctx context.Context, event Event) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
