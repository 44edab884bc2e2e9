package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/posly/settlement-service/pkg/logger"
)

// PaymentMetrics интерфейс для метрик платежей
type PaymentMetrics interface {
	IncPaymentCreated(currency string)
	IncPaymentSettled(currency string)
	IncPaymentCancelled(currency string)
	IncPaymentFailed(currency string)
	IncPaymentRefunded(currency string)
	IncGiftCardRedemption(outcome string)
	ObservePaymentAmount(amountCents int64, currency string, status string)
}

type paymentMetrics struct {
	log                 *logger.Logger
	paymentsCreated     *prometheus.CounterVec
	paymentsStatus      *prometheus.CounterVec
	giftCardRedemptions *prometheus.CounterVec
	paymentsAmount      *prometheus.HistogramVec
}

// NewPaymentMetrics создает новые метрики платежей
func NewPaymentMetrics(registry *prometheus.Registry, log *logger.Logger) PaymentMetrics {
	paymentsCreated := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_created_total",
			Help: "The total number of created payments",
		},
		[]string{"currency"},
	)

	paymentsStatus := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_status_total",
			Help: "The total number of payments by final status",
		},
		[]string{"status", "currency"},
	)

	giftCardRedemptions := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gift_card_redemptions_total",
			Help: "The total number of gift card redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	paymentsAmount := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payments_amount_cents",
			Help:    "Payment amounts distribution in minor currency units",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6), // 100, 1000, ..., 10000000
		},
		[]string{"currency", "status"},
	)

	return &paymentMetrics{
		log:                 log,
		paymentsCreated:     paymentsCreated,
		paymentsStatus:      paymentsStatus,
		giftCardRedemptions: giftCardRedemptions,
		paymentsAmount:      paymentsAmount,
	}
}

// IncPaymentCreated увеличивает счетчик созданных платежей
func (m *paymentMetrics) IncPaymentCreated(currency string) {
	m.paymentsCreated.WithLabelValues(currency).Inc()
}

// IncPaymentSettled увеличивает счетчик успешных платежей
func (m *paymentMetrics) IncPaymentSettled(currency string) {
	m.paymentsStatus.WithLabelValues("success", currency).Inc()
}

// IncPaymentCancelled увеличивает счетчик отмененных платежей
func (m *paymentMetrics) IncPaymentCancelled(currency string) {
	m.paymentsStatus.WithLabelValues("cancelled", currency).Inc()
}

// IncPaymentFailed увеличивает счетчик неудачных платежей
func (m *paymentMetrics) IncPaymentFailed(currency string) {
	m.paymentsStatus.WithLabelValues("failed", currency).Inc()
}

// IncPaymentRefunded увеличивает счетчик возвращенных платежей
func (m *paymentMetrics) IncPaymentRefunded(currency string) {
	m.paymentsStatus.WithLabelValues("refunded", currency).Inc()
}

// IncGiftCardRedemption увеличивает счетчик списаний с подарочных карт
func (m *paymentMetrics) IncGiftCardRedemption(outcome string) {
	m.giftCardRedemptions.WithLabelValues(outcome).Inc()
}

// ObservePaymentAmount записывает сумму платежа
func (m *paymentMetrics) ObservePaymentAmount(amountCents int64, currency string, status string) {
	m.paymentsAmount.WithLabelValues(currency, status).Observe(float64(amountCents))
}
