package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus статус платежа
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSuccess   PaymentStatus = "success"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// transitions таблица допустимых переходов статуса.
// Pending -> {Success, Cancelled, Failed}; Success -> Refunded. Все переходы односторонние.
var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusSuccess, PaymentStatusCancelled, PaymentStatusFailed},
	PaymentStatusSuccess:   {PaymentStatusRefunded},
	PaymentStatusCancelled: {},
	PaymentStatusFailed:    {},
	PaymentStatusRefunded:  {},
}

// ParsePaymentStatus проверяет строковое значение статуса на границе системы.
// Неизвестные значения отклоняются, а не пропускаются дальше.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusCancelled,
		PaymentStatusFailed, PaymentStatusRefunded:
		return PaymentStatus(s), nil
	}
	return "", NewPaymentError(ReasonInvalidState, "unknown payment status: "+s, "", nil)
}

// CanTransition проверяет допустимость перехода по таблице переходов
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal проверяет, является ли статус конечным.
// Success тоже терминален для всех операций кроме возврата.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusPending
}

// Payment представляет одну попытку расчета по заказу.
// Отменённая или неудачная попытка не переоткрывается: повтор оплаты создает новую запись.
type Payment struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	OrderID    uuid.UUID `json:"order_id"`

	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`

	// GiftCardPlannedCents фиксируется при создании; GiftCardChargedCents
	// заполняется только при фактическом списании и может быть меньше планового.
	GiftCardID           *uuid.UUID `json:"gift_card_id,omitempty"`
	GiftCardPlannedCents int64      `json:"gift_card_planned_cents"`
	GiftCardChargedCents int64      `json:"gift_card_charged_cents"`

	// ExternalSessionID отсутствует, если подарочная карта покрывает всю сумму
	ExternalSessionID *string `json:"external_session_id,omitempty"`

	Status     PaymentStatus `json:"status"`
	EmployeeID *uuid.UUID    `json:"employee_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
}

// ExternalCents возвращает долю платежа, проходящую через внешний процессор
func (p *Payment) ExternalCents() int64 {
	return p.AmountCents - p.GiftCardPlannedCents
}

// ExternalChargedCents возвращает фактически списанную внешнюю долю для возврата.
// Внешняя доля фиксируется при создании сессии и не зависит от того,
// сколько удалось списать с карты при отложенном списании.
func (p *Payment) ExternalChargedCents() int64 {
	if p.ExternalSessionID == nil {
		return 0
	}
	return p.AmountCents - p.GiftCardPlannedCents
}

// CreatePaymentRequest представляет запрос на создание платежа
type CreatePaymentRequest struct {
	OrderID             uuid.UUID
	BusinessID          uuid.UUID
	AmountCents         int64
	Currency            string
	GiftCardCode        string
	GiftCardAmountCents *int64
	EmployeeID          *uuid.UUID
	SuccessURL          string
	CancelURL           string
}

// CreatePaymentResult результат создания платежа для вызывающей стороны
type CreatePaymentResult struct {
	PaymentID           uuid.UUID     `json:"payment_id"`
	Status              PaymentStatus `json:"status"`
	PaidByGiftCard      int64         `json:"paid_by_gift_card"`
	RemainingForStripe  int64         `json:"remaining_for_stripe"`
	ExternalSessionID   string        `json:"external_session_id,omitempty"`
	ExternalRedirectURL string        `json:"external_redirect_url,omitempty"`
}
