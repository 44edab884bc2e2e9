package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/pkg/logger"
)

func newGiftCardRepo(t *testing.T) *InMemoryGiftCardRepository {
	t.Helper()
	return NewInMemoryGiftCardRepository(logger.New(logger.ERROR))
}

func TestGiftCardRepositoryCreateDuplicate(t *testing.T) {
	repo := newGiftCardRepo(t)
	ctx := context.Background()
	businessID := uuid.New()

	_, err := repo.Create(ctx, domain.GiftCard{ID: uuid.New(), Code: "ABC", BusinessID: businessID})
	require.NoError(t, err)

	// Код уникален без учета регистра в рамках бизнеса
	_, err = repo.Create(ctx, domain.GiftCard{ID: uuid.New(), Code: "abc", BusinessID: businessID})
	assert.ErrorIs(t, err, ErrDuplicate)

	// Тот же код у другого бизнеса допустим
	_, err = repo.Create(ctx, domain.GiftCard{ID: uuid.New(), Code: "ABC", BusinessID: uuid.New()})
	assert.NoError(t, err)
}

func TestGiftCardRepositoryGetByCode(t *testing.T) {
	repo := newGiftCardRepo(t)
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()

	own, err := repo.Create(ctx, domain.GiftCard{ID: uuid.New(), Code: "GIFT", BusinessID: owner})
	require.NoError(t, err)
	foreign, err := repo.Create(ctx, domain.GiftCard{ID: uuid.New(), Code: "GIFT", BusinessID: other})
	require.NoError(t, err)

	// Карта своего бизнеса предпочитается при совпадении кодов
	found, err := repo.GetByCode(ctx, owner, "gift")
	require.NoError(t, err)
	assert.Equal(t, own.ID, found.ID)

	// Чужая карта все равно находится: валидация различает wrong_business и not_found
	found, err = repo.GetByCode(ctx, uuid.New(), "GIFT")
	require.NoError(t, err)
	assert.Contains(t, []uuid.UUID{own.ID, foreign.ID}, found.ID)

	_, err = repo.GetByCode(ctx, owner, "MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGiftCardRepositoryCompareAndSetBalance(t *testing.T) {
	repo := newGiftCardRepo(t)
	ctx := context.Background()

	card, err := repo.Create(ctx, domain.GiftCard{ID: uuid.New(), Code: "CAS", BusinessID: uuid.New(), BalanceCents: 1000})
	require.NoError(t, err)

	updated, err := repo.CompareAndSetBalance(ctx, card.ID, card.Version, 700)
	require.NoError(t, err)
	assert.Equal(t, int64(700), updated.BalanceCents)
	assert.Equal(t, card.Version+1, updated.Version)

	// Повтор со старой версией отклоняется
	_, err = repo.CompareAndSetBalance(ctx, card.ID, card.Version, 400)
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = repo.CompareAndSetBalance(ctx, uuid.New(), 0, 100)
	assert.ErrorIs(t, err, ErrNotFound)
}
