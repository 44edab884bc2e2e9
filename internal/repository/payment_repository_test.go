package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/pkg/logger"
)

func newPaymentRepo(t *testing.T) *InMemoryPaymentRepository {
	t.Helper()
	return NewInMemoryPaymentRepository(logger.New(logger.ERROR))
}

func TestPaymentRepositoryGetBySessionID(t *testing.T) {
	repo := newPaymentRepo(t)
	ctx := context.Background()

	sessionID := "cs_test_123"
	created, err := repo.Create(ctx, domain.Payment{
		ID:                uuid.New(),
		ExternalSessionID: &sessionID,
		Status:            domain.PaymentStatusPending,
	})
	require.NoError(t, err)

	found, err := repo.GetBySessionID(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.GetBySessionID(ctx, "cs_unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaymentRepositoryTransitionGuard(t *testing.T) {
	repo := newPaymentRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, domain.Payment{ID: uuid.New(), Status: domain.PaymentStatusPending})
	require.NoError(t, err)

	now := time.Now()
	charged := int64(500)
	settled, err := repo.Transition(ctx, created.ID, StatusTransition{
		From:                 domain.PaymentStatusPending,
		To:                   domain.PaymentStatusSuccess,
		GiftCardChargedCents: &charged,
		CompletedAt:          &now,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, settled.Status)
	assert.Equal(t, int64(500), settled.GiftCardChargedCents)
	require.NotNil(t, settled.CompletedAt)

	// Второй такой же переход проигрывает охране статуса
	_, err = repo.Transition(ctx, created.ID, StatusTransition{
		From: domain.PaymentStatusPending,
		To:   domain.PaymentStatusSuccess,
	})
	assert.ErrorIs(t, err, ErrStatusConflict)

	_, err = repo.Transition(ctx, uuid.New(), StatusTransition{
		From: domain.PaymentStatusPending,
		To:   domain.PaymentStatusCancelled,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaymentRepositoryListByOrderIDSorted(t *testing.T) {
	repo := newPaymentRepo(t)
	ctx := context.Background()
	orderID := uuid.New()

	base := time.Now()
	for i := 3; i >= 1; i-- {
		_, err := repo.Create(ctx, domain.Payment{
			ID:        uuid.New(),
			OrderID:   orderID,
			Status:    domain.PaymentStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	payments, err := repo.ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.True(t, payments[0].CreatedAt.Before(payments[1].CreatedAt))
	assert.True(t, payments[1].CreatedAt.Before(payments[2].CreatedAt))
}
