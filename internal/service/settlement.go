package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/internal/gateway"
	"github.com/posly/settlement-service/internal/kafka/producer"
	"github.com/posly/settlement-service/internal/metrics"
	"github.com/posly/settlement-service/internal/repository"
	"github.com/posly/settlement-service/pkg/logger"
)

// SettlementEngine оркестрирует расчет платежа между подарочной картой
// и внешним процессором. Владеет жизненным циклом записи Payment и ее
// машиной состояний; балансы карт меняет только через GiftCardLedger.
type SettlementEngine struct {
	payments repository.PaymentRepository
	ledger   *GiftCardLedger
	gateway  gateway.CheckoutGateway
	producer producer.PaymentProducer
	metrics  metrics.PaymentMetrics
	log      *logger.Logger
}

// NewSettlementEngine создает новый движок расчетов.
// producer и metrics могут быть nil: события и метрики тогда не публикуются.
func NewSettlementEngine(
	payments repository.PaymentRepository,
	ledger *GiftCardLedger,
	gw gateway.CheckoutGateway,
	prod producer.PaymentProducer,
	m metrics.PaymentMetrics,
	log *logger.Logger,
) *SettlementEngine {
	return &SettlementEngine{
		payments: payments,
		ledger:   ledger,
		gateway:  gw,
		producer: prod,
		metrics:  m,
		log:      log,
	}
}

// CreatePayment создает новую попытку расчета по заказу.
//
// Плановая доля подарочной карты фиксируется сразу, но списывается
// только когда внешняя часть подтверждена. Если карта покрывает всю
// сумму, списание и завершение происходят синхронно, без внешней сессии.
func (s *SettlementEngine) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (domain.CreatePaymentResult, error) {
	if req.AmountCents <= 0 {
		return domain.CreatePaymentResult{}, domain.NewPaymentError(domain.ReasonInvalidAmount, "payment amount must be positive", "", nil)
	}
	if req.GiftCardAmountCents != nil && *req.GiftCardAmountCents <= 0 {
		return domain.CreatePaymentResult{}, domain.NewPaymentError(domain.ReasonInvalidAmount, "gift card amount must be positive", "", nil)
	}

	// Валидация карты до любых побочных эффектов: при отказе запись платежа не создается
	var card *domain.GiftCard
	if req.GiftCardCode != "" {
		validated, err := s.ledger.Validate(ctx, req.BusinessID, req.GiftCardCode)
		if err != nil {
			return domain.CreatePaymentResult{}, err
		}
		card = &validated
	}

	// План списания: явная сумма обрезается по общей, без явной суммы
	// карта используется на максимум
	var plannedCents int64
	if card != nil {
		plannedCents = req.AmountCents
		if req.GiftCardAmountCents != nil && *req.GiftCardAmountCents < req.AmountCents {
			plannedCents = *req.GiftCardAmountCents
		}
	}
	remainderCents := req.AmountCents - plannedCents

	payment := domain.Payment{
		ID:                   uuid.New(),
		BusinessID:           req.BusinessID,
		OrderID:              req.OrderID,
		AmountCents:          req.AmountCents,
		Currency:             req.Currency,
		GiftCardPlannedCents: plannedCents,
		Status:               domain.PaymentStatusPending,
		EmployeeID:           req.EmployeeID,
		CreatedAt:            time.Now(),
	}
	if card != nil {
		cardID := card.ID
		payment.GiftCardID = &cardID
	}

	if remainderCents == 0 {
		return s.settleFullGiftCard(ctx, payment, *card)
	}

	return s.createWithExternalSession(ctx, payment, remainderCents, req.SuccessURL, req.CancelURL)
}

// settleFullGiftCard обрабатывает платеж, целиком покрытый картой:
// списание и завершение происходят синхронно, внешняя сессия не создается.
func (s *SettlementEngine) settleFullGiftCard(ctx context.Context, payment domain.Payment, card domain.GiftCard) (domain.CreatePaymentResult, error) {
	created, err := s.payments.Create(ctx, payment)
	if err != nil {
		return domain.CreatePaymentResult{}, fmt.Errorf("failed to persist payment: %w", err)
	}
	s.emitCreated(ctx, created)

	// Списание строго на плановую сумму: обнаруженная здесь нехватка баланса
	// (гонка с другим списанием) проваливает платеж целиком
	redemption, err := s.ledger.RedeemExact(ctx, payment.BusinessID, card.ID, payment.GiftCardPlannedCents)
	if err != nil {
		s.recordRedemptionOutcome("failed")
		if failErr := s.failPayment(ctx, created.ID); failErr != nil {
			s.log.Errorw("Failed to mark payment as failed after redemption error",
				"paymentID", created.ID, "error", failErr)
		}
		if reason, ok := domain.ReasonOf(err); ok {
			return domain.CreatePaymentResult{}, domain.NewPaymentError(reason, "gift card redemption failed", created.ID.String(), err)
		}
		return domain.CreatePaymentResult{}, err
	}
	s.recordRedemptionOutcome("charged")

	now := time.Now()
	charged := redemption.ChargedCents
	settled, err := s.payments.Transition(ctx, created.ID, repository.StatusTransition{
		From:                 domain.PaymentStatusPending,
		To:                   domain.PaymentStatusSuccess,
		GiftCardChargedCents: &charged,
		CompletedAt:          &now,
	})
	if err != nil {
		return domain.CreatePaymentResult{}, fmt.Errorf("failed to settle payment: %w", err)
	}

	s.emitSettled(ctx, settled)
	s.log.Infow("Payment settled by gift card",
		"paymentID", settled.ID,
		"orderID", settled.OrderID,
		"chargedCents", charged,
	)

	return domain.CreatePaymentResult{
		PaymentID:          settled.ID,
		Status:             settled.Status,
		PaidByGiftCard:     charged,
		RemainingForStripe: 0,
	}, nil
}

// createWithExternalSession обрабатывает платеж с внешней долей.
// Сессия создается до записи платежа: при отказе процессора не остается
// записи, которую невозможно завершить. Карта на этом шаге не списывается.
func (s *SettlementEngine) createWithExternalSession(ctx context.Context, payment domain.Payment, remainderCents int64, successURL, cancelURL string) (domain.CreatePaymentResult, error) {
	session, err := s.gateway.CreateCheckoutSession(ctx, payment.ID.String(), remainderCents, payment.Currency, successURL, cancelURL)
	if err != nil {
		return domain.CreatePaymentResult{}, err
	}

	sessionID := session.SessionID
	payment.ExternalSessionID = &sessionID

	created, err := s.payments.Create(ctx, payment)
	if err != nil {
		// Запись не сохранилась: закрываем осиротевшую сессию, чтобы
		// клиент не оплатил платеж, которого нет
		if expireErr := s.gateway.ExpireSession(ctx, sessionID); expireErr != nil {
			s.log.Errorw("Failed to expire orphaned checkout session",
				"sessionID", sessionID, "error", expireErr)
		}
		return domain.CreatePaymentResult{}, fmt.Errorf("failed to persist payment: %w", err)
	}

	s.emitCreated(ctx, created)
	s.log.Infow("Payment created with external session",
		"paymentID", created.ID,
		"orderID", created.OrderID,
		"sessionID", sessionID,
		"plannedGiftCardCents", created.GiftCardPlannedCents,
		"externalCents", remainderCents,
	)

	return domain.CreatePaymentResult{
		PaymentID:           created.ID,
		Status:              created.Status,
		PaidByGiftCard:      created.GiftCardPlannedCents,
		RemainingForStripe:  remainderCents,
		ExternalSessionID:   sessionID,
		ExternalRedirectURL: session.RedirectURL,
	}, nil
}

// ConfirmExternalSuccess завершает платеж по подтверждению внешней сессии.
//
// Идемпотентность обеспечивается охраняемым переходом Pending -> Success:
// из двух конкурентных подтверждений одной сессии переход выполнит ровно
// одно, и только оно выполнит отложенное списание с карты.
func (s *SettlementEngine) ConfirmExternalSuccess(ctx context.Context, sessionID string) error {
	payment, err := s.payments.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Дубликаты и чужие колбэки ожидаемы
			s.log.Warnw("Confirmation for unknown session ignored", "sessionID", sessionID)
			return nil
		}
		return fmt.Errorf("failed to look up payment by session: %w", err)
	}

	if payment.Status != domain.PaymentStatusPending {
		s.log.Infow("Confirmation for non-pending payment ignored",
			"paymentID", payment.ID, "status", string(payment.Status))
		return nil
	}

	now := time.Now()
	settled, err := s.payments.Transition(ctx, payment.ID, repository.StatusTransition{
		From:        domain.PaymentStatusPending,
		To:          domain.PaymentStatusSuccess,
		CompletedAt: &now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			// Конкурентное подтверждение успело раньше
			s.log.Infow("Concurrent confirmation already settled payment", "paymentID", payment.ID)
			return nil
		}
		return fmt.Errorf("failed to settle payment: %w", err)
	}

	// Отложенное списание выполняет только победитель перехода
	if settled.GiftCardPlannedCents > 0 && settled.GiftCardID != nil {
		redemption, err := s.ledger.Redeem(ctx, settled.BusinessID, *settled.GiftCardID, settled.GiftCardPlannedCents)
		if err != nil {
			// Платеж уже подтвержден процессором; нехватку или недоступность
			// карты фиксируем как нулевое списание для ручной сверки
			s.recordRedemptionOutcome("failed")
			s.log.Errorw("Deferred gift card redemption failed, charged amount stays zero",
				"paymentID", settled.ID,
				"giftCardID", *settled.GiftCardID,
				"plannedCents", settled.GiftCardPlannedCents,
				"error", err,
			)
		} else {
			outcome := "charged"
			if redemption.ChargedCents < settled.GiftCardPlannedCents {
				outcome = "capped"
			}
			s.recordRedemptionOutcome(outcome)

			charged := redemption.ChargedCents
			settled, err = s.payments.Transition(ctx, settled.ID, repository.StatusTransition{
				From:                 domain.PaymentStatusSuccess,
				To:                   domain.PaymentStatusSuccess,
				GiftCardChargedCents: &charged,
			})
			if err != nil {
				return fmt.Errorf("failed to record charged gift card amount: %w", err)
			}
		}
	}

	s.emitSettled(ctx, settled)
	s.log.Infow("Payment settled by external confirmation",
		"paymentID", settled.ID,
		"sessionID", sessionID,
		"giftCardChargedCents", settled.GiftCardChargedCents,
	)
	return nil
}

// CancelExternal отменяет платеж по отказу или истечению внешней сессии.
// Карта не затрагивается: списание было отложено и так и не произошло.
func (s *SettlementEngine) CancelExternal(ctx context.Context, sessionID string) error {
	payment, err := s.payments.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warnw("Cancellation for unknown session ignored", "sessionID", sessionID)
			return nil
		}
		return fmt.Errorf("failed to look up payment by session: %w", err)
	}

	if payment.Status != domain.PaymentStatusPending {
		s.log.Infow("Cancellation for non-pending payment ignored",
			"paymentID", payment.ID, "status", string(payment.Status))
		return nil
	}

	cancelled, err := s.payments.Transition(ctx, payment.ID, repository.StatusTransition{
		From: domain.PaymentStatusPending,
		To:   domain.PaymentStatusCancelled,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			s.log.Infow("Payment already left pending state", "paymentID", payment.ID)
			return nil
		}
		return fmt.Errorf("failed to cancel payment: %w", err)
	}

	s.emitCancelled(ctx, cancelled)
	s.log.Infow("Payment cancelled", "paymentID", cancelled.ID, "sessionID", sessionID)
	return nil
}

// RefundFull полностью возвращает успешный платеж: внешнюю долю через
// процессор, долю карты обратно на карту. Любой другой статус отклоняется.
func (s *SettlementEngine) RefundFull(ctx context.Context, businessID, paymentID uuid.UUID) error {
	payment, err := s.getScoped(ctx, businessID, paymentID)
	if err != nil {
		return err
	}

	if payment.Status != domain.PaymentStatusSuccess {
		return domain.NewPaymentError(domain.ReasonInvalidState,
			fmt.Sprintf("cannot refund payment in status %s", payment.Status),
			paymentID.String(), nil)
	}

	// Переход выполняется до фактических возвратов: из двух конкурентных
	// запросов деньги вернет ровно один
	now := time.Now()
	refunded, err := s.payments.Transition(ctx, paymentID, repository.StatusTransition{
		From:       domain.PaymentStatusSuccess,
		To:         domain.PaymentStatusRefunded,
		RefundedAt: &now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return domain.NewPaymentError(domain.ReasonInvalidState, "payment is no longer refundable", paymentID.String(), err)
		}
		return fmt.Errorf("failed to transition payment to refunded: %w", err)
	}

	if externalCents := refunded.ExternalChargedCents(); externalCents > 0 && refunded.ExternalSessionID != nil {
		if err := s.gateway.Refund(ctx, *refunded.ExternalSessionID, externalCents); err != nil {
			s.log.Errorw("External refund failed after status transition, manual reconciliation required",
				"paymentID", refunded.ID,
				"sessionID", *refunded.ExternalSessionID,
				"amountCents", externalCents,
				"error", err,
			)
			return err
		}
	}

	// Доля карты возвращается на ту же карту даже если карта уже
	// заблокирована или просрочена
	if refunded.GiftCardChargedCents > 0 && refunded.GiftCardID != nil {
		if _, err := s.ledger.Credit(ctx, *refunded.GiftCardID, refunded.GiftCardChargedCents); err != nil {
			s.log.Errorw("Gift card re-credit failed, manual reconciliation required",
				"paymentID", refunded.ID,
				"giftCardID", *refunded.GiftCardID,
				"amountCents", refunded.GiftCardChargedCents,
				"error", err,
			)
			return err
		}
	}

	s.emitRefunded(ctx, refunded)
	s.log.Infow("Payment refunded",
		"paymentID", refunded.ID,
		"externalCents", refunded.ExternalChargedCents(),
		"giftCardCents", refunded.GiftCardChargedCents,
	)
	return nil
}

// GetPayment возвращает платеж в рамках бизнеса вызывающей стороны
func (s *SettlementEngine) GetPayment(ctx context.Context, businessID, paymentID uuid.UUID) (domain.Payment, error) {
	return s.getScoped(ctx, businessID, paymentID)
}

// ListByOrder возвращает все попытки расчета по заказу
func (s *SettlementEngine) ListByOrder(ctx context.Context, businessID, orderID uuid.UUID) ([]domain.Payment, error) {
	payments, err := s.payments.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for order: %w", err)
	}

	scoped := payments[:0]
	for _, p := range payments {
		if p.BusinessID == businessID {
			scoped = append(scoped, p)
		}
	}
	return scoped, nil
}

// ListByBusiness возвращает все платежи бизнеса
func (s *SettlementEngine) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]domain.Payment, error) {
	payments, err := s.payments.ListByBusinessID(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for business: %w", err)
	}
	return payments, nil
}

func (s *SettlementEngine) getScoped(ctx context.Context, businessID, paymentID uuid.UUID) (domain.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Payment{}, domain.NewPaymentError(domain.ReasonNotFound, "payment not found", paymentID.String(), nil)
		}
		return domain.Payment{}, fmt.Errorf("failed to get payment: %w", err)
	}

	// Чужие платежи неотличимы от несуществующих
	if payment.BusinessID != businessID {
		return domain.Payment{}, domain.NewPaymentError(domain.ReasonNotFound, "payment not found", paymentID.String(), nil)
	}

	return payment, nil
}

func (s *SettlementEngine) failPayment(ctx context.Context, paymentID uuid.UUID) error {
	failed, err := s.payments.Transition(ctx, paymentID, repository.StatusTransition{
		From: domain.PaymentStatusPending,
		To:   domain.PaymentStatusFailed,
	})
	if err != nil {
		return err
	}
	s.emitFailed(ctx, failed)
	return nil
}

func (s *SettlementEngine) recordRedemptionOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.IncGiftCardRedemption(outcome)
	}
}

func (s *SettlementEngine) emitCreated(ctx context.Context, payment domain.Payment) {
	if s.metrics != nil {
		s.metrics.IncPaymentCreated(payment.Currency)
		s.metrics.ObservePaymentAmount(payment.AmountCents, payment.Currency, string(payment.Status))
	}
	if s.producer != nil {
		if err := s.producer.PublishPaymentCreated(ctx, payment); err != nil {
			s.log.Warnw("Failed to publish payment.created event", "paymentID", payment.ID, "error", err)
		}
	}
}

func (s *SettlementEngine) emitSettled(ctx context.Context, payment domain.Payment) {
	if s.metrics != nil {
		s.metrics.IncPaymentSettled(payment.Currency)
		s.metrics.ObservePaymentAmount(payment.AmountCents, payment.Currency, string(payment.Status))
	}
	if s.producer != nil {
		if err := s.producer.PublishPaymentSettled(ctx, payment); err != nil {
			s.log.Warnw("Failed to publish payment.settled event", "paymentID", payment.ID, "error", err)
		}
	}
}

func (s *SettlementEngine) emitCancelled(ctx context.Context, payment domain.Payment) {
	if s.metrics != nil {
		s.metrics.IncPaymentCancelled(payment.Currency)
	}
	if s.producer != nil {
		if err := s.producer.PublishPaymentCancelled(ctx, payment); err != nil {
			s.log.Warnw("Failed to publish payment.cancelled event", "paymentID", payment.ID, "error", err)
		}
	}
}

func (s *SettlementEngine) emitFailed(ctx context.Context, payment domain.Payment) {
	if s.metrics != nil {
		s.metrics.IncPaymentFailed(payment.Currency)
	}
	if s.producer != nil {
		if err := s.producer.PublishPaymentFailed(ctx, payment); err != nil {
			s.log.Warnw("Failed to publish payment.failed event", "paymentID", payment.ID, "error", err)
		}
	}
}

func (s *SettlementEngine) emitRefunded(ctx context.Context, payment domain.Payment) {
	if s.metrics != nil {
		s.metrics.IncPaymentRefunded(payment.Currency)
	}
	if s.producer != nil {
		if err := s.producer.PublishPaymentRefunded(ctx, payment); err != nil {
			s.log.Warnw("Failed to publish payment.refunded event", "paymentID", payment.ID, "error", err)
		}
	}
}
