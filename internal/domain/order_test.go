package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderLineSubtotal(t *testing.T) {
	line := OrderLine{UnitPriceCents: 500, Quantity: 3, DiscountCents: 200}
	assert.Equal(t, int64(1300), line.SubtotalCents())

	// Скидка не уводит строку в минус
	overDiscounted := OrderLine{UnitPriceCents: 100, Quantity: 1, DiscountCents: 500}
	assert.Equal(t, int64(0), overDiscounted.SubtotalCents())
}

func TestOrderLineTax(t *testing.T) {
	// 10% от 1300 = 130
	line := OrderLine{UnitPriceCents: 500, Quantity: 3, DiscountCents: 200, TaxRateBps: 1000}
	assert.Equal(t, int64(130), line.TaxCents())
	assert.Equal(t, int64(1430), line.TotalCents())

	// Налог округляется вниз до цента: 7.75% от 99 = 7.67 -> 7
	odd := OrderLine{UnitPriceCents: 99, Quantity: 1, TaxRateBps: 775}
	assert.Equal(t, int64(7), odd.TaxCents())
}

func TestOrderLineZeroTax(t *testing.T) {
	line := OrderLine{UnitPriceCents: 1000, Quantity: 2}
	assert.Equal(t, int64(0), line.TaxCents())
	assert.Equal(t, int64(2000), line.TotalCents())
}
