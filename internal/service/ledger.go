package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/internal/repository"
	"github.com/posly/settlement-service/pkg/logger"
)

const (
	// Максимум повторов при конфликте версий баланса
	maxBalanceRetries = 5
)

// GiftCardLedger сервис подарочных карт. Все изменения баланса идут через
// optimistic concurrency: чтение карты, расчет нового баланса и условная
// запись с проверкой версии. Конфликт версий повторяется с backoff.
type GiftCardLedger struct {
	repo repository.GiftCardRepository
	log  *logger.Logger
}

// NewGiftCardLedger создает новый сервис подарочных карт
func NewGiftCardLedger(repo repository.GiftCardRepository, log *logger.Logger) *GiftCardLedger {
	return &GiftCardLedger{
		repo: repo,
		log:  log,
	}
}

// Validate находит карту по коду и проверяет ее пригодность для бизнеса.
// Неизвестный код возвращает invalid_gift_card; карта чужого бизнеса,
// заблокированная или просроченная карта - свой код причины.
func (s *GiftCardLedger) Validate(ctx context.Context, businessID uuid.UUID, code string) (domain.GiftCard, error) {
	card, err := s.repo.GetByCode(ctx, businessID, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.GiftCard{}, domain.NewGiftCardError(domain.ReasonInvalidGiftCard, "gift card not found", code, nil)
		}
		return domain.GiftCard{}, fmt.Errorf("failed to look up gift card: %w", err)
	}

	if err := card.CheckUsable(businessID, time.Now()); err != nil {
		return domain.GiftCard{}, err
	}

	return card, nil
}

// Issue создает новую подарочную карту с начальным балансом
func (s *GiftCardLedger) Issue(ctx context.Context, businessID uuid.UUID, code string, initialBalanceCents int64, expiresAt *time.Time) (domain.GiftCard, error) {
	if initialBalanceCents < 0 {
		return domain.GiftCard{}, domain.NewGiftCardError(domain.ReasonInvalidAmount, "initial balance must not be negative", code, nil)
	}
	if code == "" {
		return domain.GiftCard{}, domain.NewGiftCardError(domain.ReasonInvalidGiftCard, "gift card code must not be empty", code, nil)
	}

	card := domain.GiftCard{
		ID:           uuid.New(),
		Code:         code,
		BusinessID:   businessID,
		BalanceCents: initialBalanceCents,
		Status:       domain.GiftCardStatusActive,
		ExpiresAt:    expiresAt,
		IssuedAt:     time.Now(),
	}

	created, err := s.repo.Create(ctx, card)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.GiftCard{}, domain.NewGiftCardError(domain.ReasonInvalidGiftCard, "gift card code already exists", code, err)
		}
		return domain.GiftCard{}, fmt.Errorf("failed to issue gift card: %w", err)
	}

	s.log.Infow("Gift card issued",
		"cardID", created.ID,
		"businessID", businessID,
		"balanceCents", created.BalanceCents,
	)
	return created, nil
}

// Redeem списывает с карты до requestedCents, ограничиваясь доступным балансом.
// Возвращает фактически списанную сумму: она может быть меньше запрошенной,
// если баланс успел уменьшиться с момента планирования.
func (s *GiftCardLedger) Redeem(ctx context.Context, businessID, cardID uuid.UUID, requestedCents int64) (domain.RedemptionResult, error) {
	if requestedCents <= 0 {
		return domain.RedemptionResult{}, domain.NewGiftCardError(domain.ReasonInvalidAmount, "redemption amount must be positive", "", nil)
	}

	var result domain.RedemptionResult
	err := s.withBalanceRetry(ctx, func() error {
		card, err := s.repo.GetByID(ctx, cardID)
		if err != nil {
			return backoff.Permanent(s.mapLookupError(err, cardID))
		}
		if err := card.CheckUsable(businessID, time.Now()); err != nil {
			return backoff.Permanent(err)
		}

		charge := requestedCents
		if charge > card.BalanceCents {
			charge = card.BalanceCents
		}

		// Пустая карта: нулевое списание без записи, чтобы не плодить
		// конфликты версий с конкурентными операциями
		if charge == 0 {
			result = domain.RedemptionResult{
				ChargedCents:   0,
				RemainingCents: card.BalanceCents,
			}
			return nil
		}

		updated, err := s.repo.CompareAndSetBalance(ctx, card.ID, card.Version, card.BalanceCents-charge)
		if err != nil {
			return s.mapCASError(err)
		}

		result = domain.RedemptionResult{
			ChargedCents:   charge,
			RemainingCents: updated.BalanceCents,
		}
		return nil
	})
	if err != nil {
		return domain.RedemptionResult{}, err
	}

	s.log.Infow("Gift card redeemed",
		"cardID", cardID,
		"chargedCents", result.ChargedCents,
		"remainingCents", result.RemainingCents,
	)
	return result, nil
}

// RedeemExact списывает с карты ровно amountCents или не списывает ничего.
// Недостаточный баланс возвращает insufficient_balance без изменения карты.
func (s *GiftCardLedger) RedeemExact(ctx context.Context, businessID, cardID uuid.UUID, amountCents int64) (domain.RedemptionResult, error) {
	if amountCents <= 0 {
		return domain.RedemptionResult{}, domain.NewGiftCardError(domain.ReasonInvalidAmount, "redemption amount must be positive", "", nil)
	}

	var result domain.RedemptionResult
	err := s.withBalanceRetry(ctx, func() error {
		card, err := s.repo.GetByID(ctx, cardID)
		if err != nil {
			return backoff.Permanent(s.mapLookupError(err, cardID))
		}
		if err := card.CheckUsable(businessID, time.Now()); err != nil {
			return backoff.Permanent(err)
		}

		if card.BalanceCents < amountCents {
			return backoff.Permanent(domain.NewGiftCardError(
				domain.ReasonInsufficientBalance,
				fmt.Sprintf("gift card balance %d is less than required %d", card.BalanceCents, amountCents),
				card.Code,
				nil,
			))
		}

		updated, err := s.repo.CompareAndSetBalance(ctx, card.ID, card.Version, card.BalanceCents-amountCents)
		if err != nil {
			return s.mapCASError(err)
		}

		result = domain.RedemptionResult{
			ChargedCents:   amountCents,
			RemainingCents: updated.BalanceCents,
		}
		return nil
	})
	if err != nil {
		return domain.RedemptionResult{}, err
	}

	s.log.Infow("Gift card redeemed exact",
		"cardID", cardID,
		"chargedCents", result.ChargedCents,
		"remainingCents", result.RemainingCents,
	)
	return result, nil
}

// TopUp пополняет баланс карты. Карта должна быть пригодна к использованию.
func (s *GiftCardLedger) TopUp(ctx context.Context, businessID, cardID uuid.UUID, amountCents int64) (domain.GiftCard, error) {
	if amountCents <= 0 {
		return domain.GiftCard{}, domain.NewGiftCardError(domain.ReasonInvalidAmount, "top-up amount must be positive", "", nil)
	}

	var topped domain.GiftCard
	err := s.withBalanceRetry(ctx, func() error {
		card, err := s.repo.GetByID(ctx, cardID)
		if err != nil {
			return backoff.Permanent(s.mapLookupError(err, cardID))
		}
		if err := card.CheckUsable(businessID, time.Now()); err != nil {
			return backoff.Permanent(err)
		}

		updated, err := s.repo.CompareAndSetBalance(ctx, card.ID, card.Version, card.BalanceCents+amountCents)
		if err != nil {
			return s.mapCASError(err)
		}

		topped = updated
		return nil
	})
	if err != nil {
		return domain.GiftCard{}, err
	}

	s.log.Infow("Gift card topped up",
		"cardID", cardID,
		"amountCents", amountCents,
		"balanceCents", topped.BalanceCents,
	)
	return topped, nil
}

// Credit возвращает ранее списанную сумму на карту при возврате платежа.
// Проверки статуса и срока действия намеренно не выполняются: деньги клиента
// возвращаются даже на заблокированную или просроченную карту.
func (s *GiftCardLedger) Credit(ctx context.Context, cardID uuid.UUID, amountCents int64) (domain.GiftCard, error) {
	if amountCents <= 0 {
		return domain.GiftCard{}, domain.NewGiftCardError(domain.ReasonInvalidAmount, "credit amount must be positive", "", nil)
	}

	var credited domain.GiftCard
	err := s.withBalanceRetry(ctx, func() error {
		card, err := s.repo.GetByID(ctx, cardID)
		if err != nil {
			return backoff.Permanent(s.mapLookupError(err, cardID))
		}

		updated, err := s.repo.CompareAndSetBalance(ctx, card.ID, card.Version, card.BalanceCents+amountCents)
		if err != nil {
			return s.mapCASError(err)
		}

		credited = updated
		return nil
	})
	if err != nil {
		return domain.GiftCard{}, err
	}

	s.log.Infow("Gift card credited",
		"cardID", cardID,
		"amountCents", amountCents,
		"balanceCents", credited.BalanceCents,
	)
	return credited, nil
}

// GetByID возвращает карту по идентификатору с проверкой принадлежности бизнесу
func (s *GiftCardLedger) GetByID(ctx context.Context, businessID, cardID uuid.UUID) (domain.GiftCard, error) {
	card, err := s.repo.GetByID(ctx, cardID)
	if err != nil {
		return domain.GiftCard{}, s.mapLookupError(err, cardID)
	}
	if card.BusinessID != businessID {
		return domain.GiftCard{}, domain.NewGiftCardError(domain.ReasonWrongBusiness, "gift card belongs to another business", card.Code, nil)
	}
	return card, nil
}

// withBalanceRetry выполняет операцию с повторами при конфликте версий
func (s *GiftCardLedger) withBalanceRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxBalanceRetries), ctx))
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.log.Warnw("Gift card balance update retries exhausted", "error", err)
			return domain.ErrConflictRetryExhausted
		}
		return err
	}
	return nil
}

func (s *GiftCardLedger) mapLookupError(err error, cardID uuid.UUID) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NewGiftCardError(domain.ReasonInvalidGiftCard, "gift card not found", cardID.String(), nil)
	}
	return fmt.Errorf("failed to load gift card: %w", err)
}

func (s *GiftCardLedger) mapCASError(err error) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		// Конкурентное изменение баланса: повторяем чтение и запись
		return err
	}
	return backoff.Permanent(fmt.Errorf("failed to update gift card balance: %w", err))
}
