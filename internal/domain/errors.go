package domain

import (
	"errors"
	"fmt"
)

// ReasonCode стабильный строковый код бизнес-ошибки.
// Коды являются контрактом для вызывающей стороны и доходят
// до границы HTTP без изменений.
type ReasonCode string

const (
	ReasonInvalidGiftCard     ReasonCode = "invalid_gift_card"
	ReasonWrongBusiness       ReasonCode = "wrong_business"
	ReasonBlocked             ReasonCode = "blocked"
	ReasonExpired             ReasonCode = "expired"
	ReasonInvalidAmount       ReasonCode = "invalid_amount"
	ReasonNotFound            ReasonCode = "not_found"
	ReasonInvalidState        ReasonCode = "invalid_state"
	ReasonInsufficientBalance ReasonCode = "insufficient_balance"
)

// Application errors
var (
	// ErrExternalServiceUnavailable внешний сервис недоступен
	ErrExternalServiceUnavailable = errors.New("external service unavailable")

	// ErrConflictRetryExhausted исчерпаны повторы при конкурентном изменении
	ErrConflictRetryExhausted = errors.New("concurrent update conflict, retries exhausted")
)

// PaymentError представляет бизнес-ошибку платежа с кодом причины
type PaymentError struct {
	Reason      ReasonCode
	Message     string
	PaymentID   string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *PaymentError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("payment error [%s]: %s: %v", e.Reason, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("payment error [%s]: %s", e.Reason, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *PaymentError) Unwrap() error {
	return e.OriginalErr
}

// NewPaymentError создает новую ошибку платежа
func NewPaymentError(reason ReasonCode, message, paymentID string, err error) *PaymentError {
	return &PaymentError{
		Reason:      reason,
		Message:     message,
		PaymentID:   paymentID,
		OriginalErr: err,
	}
}

// GiftCardError представляет бизнес-ошибку подарочной карты
type GiftCardError struct {
	Reason      ReasonCode
	Message     string
	Code        string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *GiftCardError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("gift card error [%s]: %s: %v", e.Reason, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("gift card error [%s]: %s", e.Reason, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *GiftCardError) Unwrap() error {
	return e.OriginalErr
}

// NewGiftCardError создает новую ошибку подарочной карты
func NewGiftCardError(reason ReasonCode, message, code string, err error) *GiftCardError {
	return &GiftCardError{
		Reason:      reason,
		Message:     message,
		Code:        code,
		OriginalErr: err,
	}
}

// ReasonOf извлекает код причины из бизнес-ошибки.
// Для инфраструктурных ошибок возвращает пустой код и false:
// вызывающая сторона различает две категории именно этим способом.
func ReasonOf(err error) (ReasonCode, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Reason, true
	}
	var ge *GiftCardError
	if errors.As(err, &ge) {
		return ge.Reason, true
	}
	return "", false
}
