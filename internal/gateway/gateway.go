package gateway

import "context"

// CheckoutSession созданная у внешнего процессора сессия оплаты
type CheckoutSession struct {
	SessionID   string
	RedirectURL string
}

// CheckoutGateway определяет методы взаимодействия с внешним платежным процессором.
// Шлюз ничего не знает о подарочных картах: ему передается только внешняя доля платежа.
type CheckoutGateway interface {
	// CreateCheckoutSession создает hosted-сессию оплаты на указанную сумму.
	// paymentID записывается в метаданные сессии для обратной связи через вебхуки.
	CreateCheckoutSession(ctx context.Context, paymentID string, amountCents int64, currency, successURL, cancelURL string) (CheckoutSession, error)

	// Refund возвращает средства по завершенной сессии. amountCents задает
	// частичную сумму; ноль означает полный возврат захваченной суммы.
	Refund(ctx context.Context, sessionID string, amountCents int64) error

	// ExpireSession досрочно закрывает незавершенную сессию
	ExpireSession(ctx context.Context, sessionID string) error
}
