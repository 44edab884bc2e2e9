package domain

import (
	"time"

	"github.com/google/uuid"
)

// GiftCardStatus статус подарочной карты
type GiftCardStatus string

const (
	GiftCardStatusActive   GiftCardStatus = "active"
	GiftCardStatusBlocked  GiftCardStatus = "blocked"
	GiftCardStatusInactive GiftCardStatus = "inactive"
)

// ParseGiftCardStatus проверяет строковое значение статуса карты на границе системы.
// Неизвестные значения отклоняются, а не пропускаются дальше.
func ParseGiftCardStatus(s string) (GiftCardStatus, error) {
	switch GiftCardStatus(s) {
	case GiftCardStatusActive, GiftCardStatusBlocked, GiftCardStatusInactive:
		return GiftCardStatus(s), nil
	}
	return "", NewGiftCardError(ReasonInvalidState, "unknown gift card status: "+s, "", nil)
}

// GiftCard представляет подарочную карту в рамках одного бизнеса.
// Баланс меняется только через атомарные операции списания и пополнения.
type GiftCard struct {
	ID           uuid.UUID      `json:"id"`
	Code         string         `json:"code"`
	BusinessID   uuid.UUID      `json:"business_id"`
	BalanceCents int64          `json:"balance_cents"`
	Status       GiftCardStatus `json:"status"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	IssuedAt     time.Time      `json:"issued_at"`

	// Version используется для optimistic concurrency при изменении баланса
	Version int64 `json:"-"`
}

// IsExpired проверяет срок действия карты на момент now
func (g *GiftCard) IsExpired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

// CheckUsable проверяет пригодность карты к списанию или пополнению
// для указанного бизнеса. Порядок проверок фиксирован: принадлежность,
// статус, срок действия.
func (g *GiftCard) CheckUsable(businessID uuid.UUID, now time.Time) error {
	if g.BusinessID != businessID {
		return NewGiftCardError(ReasonWrongBusiness, "gift card belongs to another business", g.Code, nil)
	}
	if g.Status != GiftCardStatusActive {
		return NewGiftCardError(ReasonBlocked, "gift card is not active", g.Code, nil)
	}
	if g.IsExpired(now) {
		return NewGiftCardError(ReasonExpired, "gift card is expired", g.Code, nil)
	}
	return nil
}

// RedemptionResult результат списания с подарочной карты.
// ChargedCents может быть меньше запрошенного: списание ограничивается
// доступным балансом, и вызывающая сторона обязана использовать
// фактическое значение.
type RedemptionResult struct {
	ChargedCents   int64
	RemainingCents int64
}
