package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/posly/settlement-service/pkg/logger"
)

// WebhookEventType нормализованный тип события от процессора
type WebhookEventType string

const (
	WebhookSessionCompleted WebhookEventType = "session.completed"
	WebhookSessionExpired   WebhookEventType = "session.expired"
	WebhookIgnored          WebhookEventType = "ignored"
)

// WebhookEvent событие процессора, приведенное к внутреннему виду
type WebhookEvent struct {
	Type      WebhookEventType
	SessionID string
	PaymentID string // из метаданных сессии, может быть пустым
}

// WebhookParser проверяет подпись и разбирает входящие вебхуки Stripe
type WebhookParser struct {
	secret string
	log    *logger.Logger
}

// NewWebhookParser создает парсер вебхуков с секретом подписи
func NewWebhookParser(secret string, log *logger.Logger) *WebhookParser {
	return &WebhookParser{
		secret: secret,
		log:    log,
	}
}

// Parse проверяет подпись и извлекает данные события.
// Неподдерживаемые типы событий возвращаются как WebhookIgnored, не как ошибка.
func (p *WebhookParser) Parse(payload []byte, signatureHeader string) (WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, p.secret)
	if err != nil {
		p.log.Warnw("Webhook signature verification failed", "error", err)
		return WebhookEvent{}, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return p.parseSessionEvent(event, WebhookSessionCompleted)
	case "checkout.session.expired":
		return p.parseSessionEvent(event, WebhookSessionExpired)
	default:
		p.log.Debugw("Ignoring unhandled webhook event type", "type", string(event.Type))
		return WebhookEvent{Type: WebhookIgnored}, nil
	}
}

func (p *WebhookParser) parseSessionEvent(event stripe.Event, eventType WebhookEventType) (WebhookEvent, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		p.log.Errorw("Failed to unmarshal checkout session from webhook", "error", err, "eventID", event.ID)
		return WebhookEvent{}, fmt.Errorf("failed to parse checkout session: %w", err)
	}

	return WebhookEvent{
		Type:      eventType,
		SessionID: session.ID,
		PaymentID: session.Metadata[metadataPaymentIDKey],
	}, nil
}
