package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/pkg/logger"
)

// CachedPaymentRepository декоратор репозитория платежей с Redis-кешем.
// Ошибки кеша не фатальны: при любой проблеме с Redis запрос уходит в базу.
type CachedPaymentRepository struct {
	base  PaymentRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedPaymentRepository создает репозиторий платежей с кешированием
func NewCachedPaymentRepository(base PaymentRepository, cache *RedisCacheRepository, log *logger.Logger) *CachedPaymentRepository {
	return &CachedPaymentRepository{
		base:  base,
		cache: cache,
		log:   log,
	}
}

// Create создает платеж и кеширует его
func (r *CachedPaymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	created, err := r.base.Create(ctx, payment)
	if err != nil {
		return domain.Payment{}, err
	}

	if err := r.cache.CachePayment(ctx, created); err != nil {
		r.log.Warnw("Failed to cache payment after create", "error", err, "paymentID", created.ID)
	}

	// Список платежей заказа изменился
	if err := r.cache.InvalidateOrderPaymentsCache(ctx, created.OrderID.String()); err != nil {
		r.log.Warnw("Failed to invalidate order payments cache", "error", err, "orderID", created.OrderID)
	}

	return created, nil
}

// GetByID возвращает платеж, сначала проверяя кеш
func (r *CachedPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Payment, error) {
	cached, err := r.cache.GetCachedPayment(ctx, id.String())
	if err != nil {
		r.log.Warnw("Cache lookup failed, falling back to database", "error", err, "paymentID", id)
	} else if cached != nil {
		return *cached, nil
	}

	payment, err := r.base.GetByID(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}

	if err := r.cache.CachePayment(ctx, payment); err != nil {
		r.log.Warnw("Failed to cache payment after fetch", "error", err, "paymentID", id)
	}

	return payment, nil
}

// GetBySessionID возвращает платеж по идентификатору внешней сессии.
// Вебхуки подтверждения всегда читают свежие данные из базы.
func (r *CachedPaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (domain.Payment, error) {
	return r.base.GetBySessionID(ctx, sessionID)
}

// ListByOrderID возвращает платежи заказа, сначала проверяя кеш
func (r *CachedPaymentRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.Payment, error) {
	cached, found, err := r.cache.GetCachedOrderPayments(ctx, orderID.String())
	if err != nil {
		r.log.Warnw("Cache lookup failed, falling back to database", "error", err, "orderID", orderID)
	} else if found {
		return cached, nil
	}

	payments, err := r.base.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CacheOrderPayments(ctx, orderID.String(), payments); err != nil {
		r.log.Warnw("Failed to cache order payments", "error", err, "orderID", orderID)
	}

	return payments, nil
}

// ListByBusinessID возвращает платежи бизнеса без кеширования:
// список слишком изменчив, чтобы кеш приносил пользу.
func (r *CachedPaymentRepository) ListByBusinessID(ctx context.Context, businessID uuid.UUID) ([]domain.Payment, error) {
	return r.base.ListByBusinessID(ctx, businessID)
}

// Transition выполняет переход статуса и обновляет кеш
func (r *CachedPaymentRepository) Transition(ctx context.Context, id uuid.UUID, t StatusTransition) (domain.Payment, error) {
	payment, err := r.base.Transition(ctx, id, t)
	if err != nil {
		return domain.Payment{}, err
	}

	if err := r.cache.CachePayment(ctx, payment); err != nil {
		r.log.Warnw("Failed to cache payment after transition", "error", err, "paymentID", id)
	}

	if err := r.cache.InvalidateOrderPaymentsCache(ctx, payment.OrderID.String()); err != nil {
		r.log.Warnw("Failed to invalidate order payments cache", "error", err, "orderID", payment.OrderID)
	}

	return payment, nil
}
