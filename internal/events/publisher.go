package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"

	"github.com/akylbek/payment-system/esewa-gateway/internal/config"
	"github.com/akylbek/payment-system/esewa-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
)

const (
	BrokerKafka = "kafka"
	BrokerNats  = "nats"
	BrokerNone  = "none"

	KafkaTopic    = "esewa.payment.events"
	SubjectPrefix = "esewa."
)

// NewPublisher builds the publisher named by cfg.EventBroker.
func NewPublisher(cfg *config.Config) (interfaces.EventPublisher, error) {
	switch strings.ToLower(cfg.EventBroker) {
	case BrokerKafka:
		if cfg.KafkaBrokers == "" {
			return nil, &config.ConfigurationError{Field: "kafka.brokers"}
		}
		return NewKafkaPublisher(cfg.KafkaBrokers, KafkaTopic), nil
	case BrokerNats:
		if cfg.NatsURL == "" {
			return nil, &config.ConfigurationError{Field: "nats.url"}
		}
		nc, err := nats.Connect(cfg.NatsURL, nats.Name("esewa-gateway"))
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		return NewNatsPublisher(nc), nil
	case BrokerNone, "":
		return NopPublisher{}, nil
	default:
		return nil, &config.ConfigurationError{Field: "event_broker"}
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by transaction id so one transaction's
// events stay on one partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(strings.Split(brokers, ",")...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt models.PaymentEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.TransactionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type subjectPublisher interface {
	Publish(subj string, data []byte) error
}

// NatsPublisher publishes each event on "esewa.<type>", e.g. esewa.payment.verified.
type NatsPublisher struct {
	conn  subjectPublisher
	close func()
}

func NewNatsPublisher(nc *nats.Conn) *NatsPublisher {
	return &NatsPublisher{conn: nc, close: nc.Close}
}

func (p *NatsPublisher) Publish(_ context.Context, evt models.PaymentEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectPrefix+evt.Type, payload)
}

func (p *NatsPublisher) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.PaymentEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
