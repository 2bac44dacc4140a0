package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Shopify/sarama"
)

type kafkaSink struct {
	topic string
	conn  sarama.SyncProducer
}

func producerConfig() *sarama.Config {
	saramaConf := sarama.NewConfig()
	saramaConf.Producer.Return.Successes = true
	saramaConf.Producer.Return.Errors = true
	saramaConf.Producer.RequiredAcks = sarama.WaitForAll
	return saramaConf
}

// NewKafkaProducer dials the brokers. The producer owns its client; Close
// releases both.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	conn, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return conn, nil
}

// NewKafkaSink publishes events as JSON, keyed by order id so that all
// events of one order land on the same partition.
func NewKafkaSink(producer sarama.SyncProducer, topic string) Sink {
	return &kafkaSink{conn: producer, topic: topic}
}

func (s *kafkaSink) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}
	if key := eventKey(event); key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	if _, _, err := s.conn.SendMessage(msg); err != nil {
		return fmt.Errorf("send %s: %w", event.Type, err)
	}
	return nil
}

func eventKey(event Event) string {
	switch {
	case event.Order != nil:
		return strconv.FormatUint(uint64(event.Order.ID), 10)
	case event.Payment != nil:
		return strconv.FormatUint(uint64(event.Payment.OrderID), 10)
	}
	return ""
}
