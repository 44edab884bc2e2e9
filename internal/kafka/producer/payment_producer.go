package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/pkg/logger"
)

const (
	TopicPaymentCreated   = "payment.created"
	TopicPaymentSettled   = "payment.settled"
	TopicPaymentCancelled = "payment.cancelled"
	TopicPaymentFailed    = "payment.failed"
	TopicPaymentRefunded  = "payment.refunded"
)

// PaymentEvent представляет событие платежа для Kafka
type PaymentEvent struct {
	ID                   string               `json:"id"`
	BusinessID           string               `json:"business_id"`
	OrderID              string               `json:"order_id"`
	AmountCents          int64                `json:"amount_cents"`
	GiftCardChargedCents int64                `json:"gift_card_charged_cents"`
	Currency             string               `json:"currency"`
	Status               domain.PaymentStatus `json:"status"`
	Timestamp            time.Time            `json:"timestamp"`
}

// PaymentProducer интерфейс для отправки событий платежей
type PaymentProducer interface {
	PublishPaymentCreated(ctx context.Context, payment domain.Payment) error
	PublishPaymentSettled(ctx context.Context, payment domain.Payment) error
	PublishPaymentCancelled(ctx context.Context, payment domain.Payment) error
	PublishPaymentFailed(ctx context.Context, payment domain.Payment) error
	PublishPaymentRefunded(ctx context.Context, payment domain.Payment) error
	Close() error
}

type kafkaPaymentProducer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
}

// NewKafkaPaymentProducer создает новый продюсер событий платежей
func NewKafkaPaymentProducer(producer sarama.SyncProducer, log *logger.Logger) PaymentProducer {
	return &kafkaPaymentProducer{
		producer: producer,
		log:      log,
	}
}

// PublishPaymentCreated публикует событие о создании платежа
func (p *kafkaPaymentProducer) PublishPaymentCreated(ctx context.Context, payment domain.Payment) error {
	return p.publishEvent(ctx, TopicPaymentCreated, payment)
}

// PublishPaymentSettled публикует событие об успешном расчете платежа
func (p *kafkaPaymentProducer) PublishPaymentSettled(ctx context.Context, payment domain.Payment) error {
	return p.publishEvent(ctx, TopicPaymentSettled, payment)
}

// PublishPaymentCancelled публикует событие об отмене платежа
func (p *kafkaPaymentProducer) PublishPaymentCancelled(ctx context.Context, payment domain.Payment) error {
	return p.publishEvent(ctx, TopicPaymentCancelled, payment)
}

// PublishPaymentFailed публикует событие о неудачном платеже
func (p *kafkaPaymentProducer) PublishPaymentFailed(ctx context.Context, payment domain.Payment) error {
	return p.publishEvent(ctx, TopicPaymentFailed, payment)
}

// PublishPaymentRefunded публикует событие о возврате платежа
func (p *kafkaPaymentProducer) PublishPaymentRefunded(ctx context.Context, payment domain.Payment) error {
	return p.publishEvent(ctx, TopicPaymentRefunded, payment)
}

// publishEvent публикует событие платежа в Kafka
func (p *kafkaPaymentProducer) publishEvent(ctx context.Context, topic string, payment domain.Payment) error {
	event := PaymentEvent{
		ID:                   payment.ID.String(),
		BusinessID:           payment.BusinessID.String(),
		OrderID:              payment.OrderID.String(),
		AmountCents:          payment.AmountCents,
		GiftCardChargedCents: payment.GiftCardChargedCents,
		Currency:             payment.Currency,
		Status:               payment.Status,
		Timestamp:            time.Now(),
	}

	messageValue, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payment event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(payment.ID.String()),
		Value: sarama.ByteEncoder(messageValue),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(topic),
			},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish payment event: %w", err)
	}

	p.log.Info("Published payment event to topic %s: partition=%d offset=%d",
		topic, partition, offset)

	return nil
}

// Close закрывает продюсер
func (p *kafkaPaymentProducer) Close() error {
	return p.producer.Close()
}
