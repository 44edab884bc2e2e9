package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderLine неизменяемый снимок строки заказа, зафиксированный в момент продажи.
// Цена, скидка и налог копируются из каталога при создании строки и больше
// не пересчитываются: исторические чеки не меняются при изменении каталога.
type OrderLine struct {
	ID      uuid.UUID `json:"id"`
	OrderID uuid.UUID `json:"order_id"`

	ItemName       string `json:"item_name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int64  `json:"quantity"`

	// DiscountCents абсолютная скидка на строку, уже рассчитанная на момент продажи
	DiscountCents int64 `json:"discount_cents"`

	// TaxRateBps налоговая ставка в базисных пунктах (1/100 процента)
	TaxRateBps int64 `json:"tax_rate_bps"`

	CapturedAt time.Time `json:"captured_at"`
}

// SubtotalCents возвращает сумму строки до налога: цена*количество минус скидка.
// Скидка не может увести строку в минус.
func (l *OrderLine) SubtotalCents() int64 {
	subtotal := l.UnitPriceCents*l.Quantity - l.DiscountCents
	if subtotal < 0 {
		return 0
	}
	return subtotal
}

// TaxCents возвращает налог на строку, округленный вниз до цента
func (l *OrderLine) TaxCents() int64 {
	return l.SubtotalCents() * l.TaxRateBps / 10000
}

// TotalCents возвращает полную сумму строки с налогом
func (l *OrderLine) TotalCents() int64 {
	return l.SubtotalCents() + l.TaxCents()
}

// OrderTotal итог по заказу, передаваемый движку расчетов как единая сумма
type OrderTotal struct {
	OrderID       uuid.UUID `json:"order_id"`
	SubtotalCents int64     `json:"subtotal_cents"`
	DiscountCents int64     `json:"discount_cents"`
	TaxCents      int64     `json:"tax_cents"`
	TotalCents    int64     `json:"total_cents"`
	Currency      string    `json:"currency"`
	LineCount     int       `json:"line_count"`
}
