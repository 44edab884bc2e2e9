package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/pkg/logger"
)

const (
	// Префиксы ключей для различных типов данных
	paymentKeyPrefix       = "payment:"
	orderPaymentsKeyPrefix = "order_payments:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCacheRepository реализует кеширование платежей с использованием Redis
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// CachePayment кеширует платеж в Redis
func (r *RedisCacheRepository) CachePayment(ctx context.Context, payment domain.Payment) error {
	key := paymentKeyPrefix + payment.ID.String()

	data, err := json.Marshal(payment)
	if err != nil {
		r.log.Errorw("Failed to marshal payment for caching", "error", err, "paymentID", payment.ID)
		return fmt.Errorf("failed to marshal payment: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache payment in Redis", "error", err, "paymentID", payment.ID)
		return fmt.Errorf("failed to cache payment: %w", err)
	}

	r.log.Debugw("Payment cached successfully", "paymentID", payment.ID)
	return nil
}

// GetCachedPayment получает платеж из кеша
func (r *RedisCacheRepository) GetCachedPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	key := paymentKeyPrefix + paymentID

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			// Ключ не найден в кеше
			r.log.Debugw("Payment not found in cache", "paymentID", paymentID)
			return nil, nil
		}
		r.log.Errorw("Error getting payment from Redis", "error", err, "paymentID", paymentID)
		return nil, fmt.Errorf("failed to get payment from cache: %w", err)
	}

	var payment domain.Payment
	if err := json.Unmarshal(data, &payment); err != nil {
		r.log.Errorw("Failed to unmarshal cached payment", "error", err, "paymentID", paymentID)
		return nil, fmt.Errorf("failed to unmarshal cached payment: %w", err)
	}

	r.log.Debugw("Payment retrieved from cache", "paymentID", paymentID)
	return &payment, nil
}

// DeleteCachedPayment удаляет платеж из кеша
func (r *RedisCacheRepository) DeleteCachedPayment(ctx context.Context, paymentID string) error {
	key := paymentKeyPrefix + paymentID

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to delete payment from cache", "error", err, "paymentID", paymentID)
		return fmt.Errorf("failed to delete payment from cache: %w", err)
	}

	r.log.Debugw("Payment deleted from cache", "paymentID", paymentID)
	return nil
}

// CacheOrderPayments кеширует список платежей заказа
func (r *RedisCacheRepository) CacheOrderPayments(ctx context.Context, orderID string, payments []domain.Payment) error {
	key := orderPaymentsKeyPrefix + orderID

	data, err := json.Marshal(payments)
	if err != nil {
		r.log.Errorw("Failed to marshal order payments for caching", "error", err, "orderID", orderID)
		return fmt.Errorf("failed to marshal order payments: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache order payments in Redis", "error", err, "orderID", orderID)
		return fmt.Errorf("failed to cache order payments: %w", err)
	}

	r.log.Debugw("Order payments cached successfully", "orderID", orderID, "count", len(payments))
	return nil
}

// GetCachedOrderPayments получает список платежей заказа из кеша
func (r *RedisCacheRepository) GetCachedOrderPayments(ctx context.Context, orderID string) ([]domain.Payment, bool, error) {
	key := orderPaymentsKeyPrefix + orderID

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			r.log.Debugw("Order payments not found in cache", "orderID", orderID)
			return nil, false, nil
		}
		r.log.Errorw("Error getting order payments from Redis", "error", err, "orderID", orderID)
		return nil, false, fmt.Errorf("failed to get order payments from cache: %w", err)
	}

	var payments []domain.Payment
	if err := json.Unmarshal(data, &payments); err != nil {
		r.log.Errorw("Failed to unmarshal cached order payments", "error", err, "orderID", orderID)
		return nil, false, fmt.Errorf("failed to unmarshal cached order payments: %w", err)
	}

	r.log.Debugw("Order payments retrieved from cache", "orderID", orderID, "count", len(payments))
	return payments, true, nil
}

// InvalidateOrderPaymentsCache удаляет кеш платежей заказа
func (r *RedisCacheRepository) InvalidateOrderPaymentsCache(ctx context.Context, orderID string) error {
	key := orderPaymentsKeyPrefix + orderID

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to invalidate order payments cache", "error", err, "orderID", orderID)
		return fmt.Errorf("failed to invalidate order payments cache: %w", err)
	}

	r.log.Debugw("Order payments cache invalidated", "orderID", orderID)
	return nil
}
