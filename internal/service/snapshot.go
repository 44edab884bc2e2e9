package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/pkg/logger"
)

// OrderLineSource поставляет зафиксированные строки заказа.
// Хранилище заказов принадлежит другому сервису; здесь нужен только доступ
// на чтение к снимкам строк.
type OrderLineSource interface {
	LinesByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.OrderLine, error)
}

// OrderSnapshotService сводит снимки строк заказа в одну сумму для расчета.
// Строки не пересчитываются: используются только значения, зафиксированные
// в момент продажи.
type OrderSnapshotService struct {
	lines OrderLineSource
	log   *logger.Logger
}

// NewOrderSnapshotService создает новый сервис итогов заказа
func NewOrderSnapshotService(lines OrderLineSource, log *logger.Logger) *OrderSnapshotService {
	return &OrderSnapshotService{
		lines: lines,
		log:   log,
	}
}

// ResolveOrderTotal возвращает итог по заказу в минорных единицах валюты
func (s *OrderSnapshotService) ResolveOrderTotal(ctx context.Context, orderID uuid.UUID, currency string) (domain.OrderTotal, error) {
	lines, err := s.lines.LinesByOrderID(ctx, orderID)
	if err != nil {
		return domain.OrderTotal{}, fmt.Errorf("failed to load order lines: %w", err)
	}

	total := domain.OrderTotal{
		OrderID:   orderID,
		Currency:  currency,
		LineCount: len(lines),
	}
	for i := range lines {
		line := &lines[i]
		total.SubtotalCents += line.SubtotalCents()
		total.DiscountCents += line.DiscountCents
		total.TaxCents += line.TaxCents()
		total.TotalCents += line.TotalCents()
	}

	s.log.Debugw("Order total resolved",
		"orderID", orderID,
		"lineCount", total.LineCount,
		"totalCents", total.TotalCents,
	)
	return total, nil
}
