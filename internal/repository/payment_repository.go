package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/pkg/logger"
)

// StatusTransition описывает охраняемый переход статуса платежа.
// Переход применяется атомарно и только если текущий статус равен From:
// этим обеспечивается идемпотентность повторных вебхуков.
type StatusTransition struct {
	From domain.PaymentStatus
	To   domain.PaymentStatus

	// Поля ниже применяются только вместе с переходом
	GiftCardChargedCents *int64
	CompletedAt          *time.Time
	RefundedAt           *time.Time
}

// PaymentRepository интерфейс для работы с платежами
type PaymentRepository interface {
	Create(ctx context.Context, payment domain.Payment) (domain.Payment, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Payment, error)
	GetBySessionID(ctx context.Context, sessionID string) (domain.Payment, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.Payment, error)
	ListByBusinessID(ctx context.Context, businessID uuid.UUID) ([]domain.Payment, error)

	// Transition выполняет условный переход статуса. Возвращает ErrStatusConflict,
	// если платеж уже не в статусе From, и ErrNotFound, если платежа нет.
	Transition(ctx context.Context, id uuid.UUID, t StatusTransition) (domain.Payment, error)
}

// InMemoryPaymentRepository реализация репозитория платежей в памяти
type InMemoryPaymentRepository struct {
	payments map[uuid.UUID]domain.Payment
	mutex    sync.RWMutex
	log      *logger.Logger
}

// NewInMemoryPaymentRepository создает новый репозиторий платежей в памяти
func NewInMemoryPaymentRepository(log *logger.Logger) *InMemoryPaymentRepository {
	return &InMemoryPaymentRepository{
		payments: make(map[uuid.UUID]domain.Payment),
		log:      log,
	}
}

// Create создает новый платеж
func (r *InMemoryPaymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}

	r.payments[payment.ID] = payment

	return payment, nil
}

// GetByID возвращает платеж по ID
func (r *InMemoryPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Payment, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	payment, exists := r.payments[id]
	if !exists {
		return domain.Payment{}, ErrNotFound
	}

	return payment, nil
}

// GetBySessionID возвращает платеж по идентификатору внешней сессии
func (r *InMemoryPaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (domain.Payment, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, payment := range r.payments {
		if payment.ExternalSessionID != nil && *payment.ExternalSessionID == sessionID {
			return payment, nil
		}
	}

	return domain.Payment{}, ErrNotFound
}

// ListByOrderID возвращает платежи по заказу
func (r *InMemoryPaymentRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.Payment, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var payments []domain.Payment
	for _, payment := range r.payments {
		if payment.OrderID == orderID {
			payments = append(payments, payment)
		}
	}

	sortByCreatedAt(payments)
	return payments, nil
}

// ListByBusinessID возвращает платежи бизнеса
func (r *InMemoryPaymentRepository) ListByBusinessID(ctx context.Context, businessID uuid.UUID) ([]domain.Payment, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var payments []domain.Payment
	for _, payment := range r.payments {
		if payment.BusinessID == businessID {
			payments = append(payments, payment)
		}
	}

	sortByCreatedAt(payments)
	return payments, nil
}

// Transition выполняет охраняемый переход статуса
func (r *InMemoryPaymentRepository) Transition(ctx context.Context, id uuid.UUID, t StatusTransition) (domain.Payment, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	payment, exists := r.payments[id]
	if !exists {
		return domain.Payment{}, ErrNotFound
	}

	if payment.Status != t.From {
		return domain.Payment{}, ErrStatusConflict
	}

	payment.Status = t.To
	if t.GiftCardChargedCents != nil {
		payment.GiftCardChargedCents = *t.GiftCardChargedCents
	}
	if t.CompletedAt != nil {
		payment.CompletedAt = t.CompletedAt
	}
	if t.RefundedAt != nil {
		payment.RefundedAt = t.RefundedAt
	}

	r.payments[id] = payment

	return payment, nil
}

func sortByCreatedAt(payments []domain.Payment) {
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
}
