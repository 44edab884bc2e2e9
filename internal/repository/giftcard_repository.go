package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/pkg/logger"
)

// GiftCardRepository интерфейс для работы с подарочными картами.
// Баланс меняется только через CompareAndSetBalance: чтение, расчет
// и условная запись с проверкой версии. Конфликт версий означает
// конкурентное списание и обрабатывается повтором на уровне сервиса.
type GiftCardRepository interface {
	Create(ctx context.Context, card domain.GiftCard) (domain.GiftCard, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.GiftCard, error)

	// GetByCode ищет карту по коду. Код уникален в рамках бизнеса, поэтому
	// сначала ищется карта вызывающего бизнеса; при ее отсутствии возвращается
	// карта другого бизнеса с тем же кодом, чтобы валидация могла отличить
	// wrong_business от not_found.
	GetByCode(ctx context.Context, businessID uuid.UUID, code string) (domain.GiftCard, error)

	// CompareAndSetBalance атомарно записывает новый баланс, если версия записи
	// не изменилась. Возвращает ErrVersionConflict при несовпадении версии.
	CompareAndSetBalance(ctx context.Context, id uuid.UUID, expectedVersion, newBalanceCents int64) (domain.GiftCard, error)
}

// InMemoryGiftCardRepository реализация репозитория подарочных карт в памяти
type InMemoryGiftCardRepository struct {
	cards map[uuid.UUID]domain.GiftCard
	mutex sync.RWMutex
	log   *logger.Logger
}

// NewInMemoryGiftCardRepository создает новый репозиторий подарочных карт в памяти
func NewInMemoryGiftCardRepository(log *logger.Logger) *InMemoryGiftCardRepository {
	return &InMemoryGiftCardRepository{
		cards: make(map[uuid.UUID]domain.GiftCard),
		log:   log,
	}
}

// Create создает новую подарочную карту
func (r *InMemoryGiftCardRepository) Create(ctx context.Context, card domain.GiftCard) (domain.GiftCard, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.cards {
		if existing.BusinessID == card.BusinessID && strings.EqualFold(existing.Code, card.Code) {
			return domain.GiftCard{}, ErrDuplicate
		}
	}

	if card.IssuedAt.IsZero() {
		card.IssuedAt = time.Now()
	}

	r.cards[card.ID] = card

	return card, nil
}

// GetByID возвращает карту по ID
func (r *InMemoryGiftCardRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.GiftCard, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	card, exists := r.cards[id]
	if !exists {
		return domain.GiftCard{}, ErrNotFound
	}

	return card, nil
}

// GetByCode возвращает карту по коду, предпочитая карту вызывающего бизнеса
func (r *InMemoryGiftCardRepository) GetByCode(ctx context.Context, businessID uuid.UUID, code string) (domain.GiftCard, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var foreign *domain.GiftCard
	for _, card := range r.cards {
		if !strings.EqualFold(card.Code, code) {
			continue
		}
		if card.BusinessID == businessID {
			return card, nil
		}
		c := card
		foreign = &c
	}

	if foreign != nil {
		return *foreign, nil
	}

	return domain.GiftCard{}, ErrNotFound
}

// CompareAndSetBalance атомарно записывает новый баланс при совпадении версии
func (r *InMemoryGiftCardRepository) CompareAndSetBalance(ctx context.Context, id uuid.UUID, expectedVersion, newBalanceCents int64) (domain.GiftCard, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	card, exists := r.cards[id]
	if !exists {
		return domain.GiftCard{}, ErrNotFound
	}

	if card.Version != expectedVersion {
		return domain.GiftCard{}, ErrVersionConflict
	}

	card.BalanceCents = newBalanceCents
	card.Version++

	r.cards[id] = card

	return card, nil
}
