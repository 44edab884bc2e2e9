package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/pkg/logger"
)

const (
	// Ключ метаданных для связи Stripe-сессии с нашим платежом
	metadataPaymentIDKey = "payment_id"
)

// stripeGateway реализует CheckoutGateway поверх Stripe Checkout.
type stripeGateway struct {
	client *client.API
	log    *logger.Logger

	// Адреса возврата по умолчанию, если касса их не передала
	defaultSuccessURL string
	defaultCancelURL  string
}

// NewStripeGateway создает новый шлюз Stripe.
func NewStripeGateway(apiKey, defaultSuccessURL, defaultCancelURL string, log *logger.Logger) CheckoutGateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &stripeGateway{
		client:            sc,
		log:               log,
		defaultSuccessURL: defaultSuccessURL,
		defaultCancelURL:  defaultCancelURL,
	}
}

// CreateCheckoutSession создает hosted-сессию Stripe Checkout на внешнюю долю платежа.
func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, paymentID string, amountCents int64, currency, successURL, cancelURL string) (CheckoutSession, error) {
	if successURL == "" {
		successURL = g.defaultSuccessURL
	}
	if cancelURL == "" {
		cancelURL = g.defaultCancelURL
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(paymentID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(amountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Order payment"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			metadataPaymentIDKey: paymentID,
		},
		Params: stripe.Params{
			// Повтор создания платежа не должен плодить сессии
			IdempotencyKey: stripe.String("checkout-" + paymentID),
			Context:        ctx,
		},
	}

	session, err := g.client.CheckoutSessions.New(params)
	if err != nil {
		logStripeError(g.log, "CreateCheckoutSession", err)
		return CheckoutSession{}, fmt.Errorf("%w: failed to create checkout session: %v", domain.ErrExternalServiceUnavailable, err)
	}

	g.log.Infow("Stripe checkout session created",
		"sessionID", session.ID,
		"paymentID", paymentID,
		"amountCents", amountCents,
	)

	return CheckoutSession{
		SessionID:   session.ID,
		RedirectURL: session.URL,
	}, nil
}

// Refund возвращает средства по завершенной сессии через ее PaymentIntent.
func (g *stripeGateway) Refund(ctx context.Context, sessionID string, amountCents int64) error {
	getParams := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	}
	getParams.AddExpand("payment_intent")

	session, err := g.client.CheckoutSessions.Get(sessionID, getParams)
	if err != nil {
		logStripeError(g.log, "GetCheckoutSession", err)
		return fmt.Errorf("%w: failed to get checkout session: %v", domain.ErrExternalServiceUnavailable, err)
	}

	if session.PaymentIntent == nil {
		return fmt.Errorf("checkout session %s has no payment intent to refund", sessionID)
	}

	refundParams := &stripe.RefundParams{
		PaymentIntent: stripe.String(session.PaymentIntent.ID),
		Params:        stripe.Params{Context: ctx},
	}
	if amountCents > 0 {
		refundParams.Amount = stripe.Int64(amountCents)
	}

	refund, err := g.client.Refunds.New(refundParams)
	if err != nil {
		logStripeError(g.log, "CreateRefund", err)
		return fmt.Errorf("%w: failed to create refund: %v", domain.ErrExternalServiceUnavailable, err)
	}

	g.log.Infow("Stripe refund created",
		"refundID", refund.ID,
		"sessionID", sessionID,
		"amountCents", refund.Amount,
	)
	return nil
}

// ExpireSession досрочно закрывает незавершенную сессию.
func (g *stripeGateway) ExpireSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{
		Params: stripe.Params{Context: ctx},
	}

	_, err := g.client.CheckoutSessions.Expire(sessionID, params)
	if err != nil {
		// Сессия могла уже завершиться или истечь сама
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			g.log.Warnw("Checkout session is not expirable, skipping", "sessionID", sessionID, "code", string(stripeErr.Code))
			return nil
		}
		logStripeError(g.log, "ExpireSession", err)
		return fmt.Errorf("%w: failed to expire checkout session: %v", domain.ErrExternalServiceUnavailable, err)
	}

	g.log.Infow("Stripe checkout session expired", "sessionID", sessionID)
	return nil
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
