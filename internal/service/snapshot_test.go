package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/pkg/logger"
)

type fakeLineSource struct {
	lines map[uuid.UUID][]domain.OrderLine
	err   error
}

func (f *fakeLineSource) LinesByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.OrderLine, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.lines[orderID], nil
}

func TestResolveOrderTotal(t *testing.T) {
	orderID := uuid.New()
	source := &fakeLineSource{
		lines: map[uuid.UUID][]domain.OrderLine{
			orderID: {
				{UnitPriceCents: 500, Quantity: 2, DiscountCents: 100, TaxRateBps: 1000},
				{UnitPriceCents: 300, Quantity: 1, TaxRateBps: 2000},
			},
		},
	}
	svc := NewOrderSnapshotService(source, logger.New(logger.ERROR))

	total, err := svc.ResolveOrderTotal(context.Background(), orderID, "usd")
	require.NoError(t, err)

	// Строка 1: 900 + 90 налога; строка 2: 300 + 60 налога
	assert.Equal(t, int64(1200), total.SubtotalCents)
	assert.Equal(t, int64(100), total.DiscountCents)
	assert.Equal(t, int64(150), total.TaxCents)
	assert.Equal(t, int64(1350), total.TotalCents)
	assert.Equal(t, 2, total.LineCount)
	assert.Equal(t, "usd", total.Currency)
}

func TestResolveOrderTotalEmptyOrder(t *testing.T) {
	svc := NewOrderSnapshotService(&fakeLineSource{}, logger.New(logger.ERROR))

	total, err := svc.ResolveOrderTotal(context.Background(), uuid.New(), "usd")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total.TotalCents)
	assert.Equal(t, 0, total.LineCount)
}

func TestResolveOrderTotalSourceError(t *testing.T) {
	sourceErr := errors.New("store down")
	svc := NewOrderSnapshotService(&fakeLineSource{err: sourceErr}, logger.New(logger.ERROR))

	_, err := svc.ResolveOrderTotal(context.Background(), uuid.New(), "usd")
	assert.ErrorIs(t, err, sourceErr)
}
