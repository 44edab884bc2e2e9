package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/internal/repository"
	"github.com/posly/settlement-service/pkg/logger"
)

const paymentColumns = `
	id, business_id, order_id, amount_cents, currency,
	gift_card_id, gift_card_planned_cents, gift_card_charged_cents,
	external_session_id, status, employee_id,
	created_at, completed_at, refunded_at
`

// PostgresPaymentRepository реализация репозитория платежей через PostgreSQL
type PostgresPaymentRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresPaymentRepository создает новый репозиторий платежей через PostgreSQL
func NewPostgresPaymentRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{
		db:  db,
		log: log,
	}
}

// Create создает новый платеж
func (r *PostgresPaymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	query := `
		INSERT INTO payments (
			id, business_id, order_id, amount_cents, currency,
			gift_card_id, gift_card_planned_cents, gift_card_charged_cents,
			external_session_id, status, employee_id,
			created_at, completed_at, refunded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		ctx,
		query,
		payment.ID,
		payment.BusinessID,
		payment.OrderID,
		payment.AmountCents,
		payment.Currency,
		payment.GiftCardID,
		payment.GiftCardPlannedCents,
		payment.GiftCardChargedCents,
		payment.ExternalSessionID,
		string(payment.Status),
		payment.EmployeeID,
		payment.CreatedAt,
		payment.CompletedAt,
		payment.RefundedAt,
	).Scan(&payment.CreatedAt)

	if err != nil {
		return domain.Payment{}, fmt.Errorf("failed to create payment: %w", err)
	}

	return payment, nil
}

// GetByID возвращает платеж по ID
func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	payment, err := r.scanPayment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Payment{}, repository.ErrNotFound
		}
		return domain.Payment{}, fmt.Errorf("failed to get payment: %w", err)
	}

	return payment, nil
}

// GetBySessionID возвращает платеж по идентификатору внешней сессии
func (r *PostgresPaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE external_session_id = $1`

	payment, err := r.scanPayment(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Payment{}, repository.ErrNotFound
		}
		return domain.Payment{}, fmt.Errorf("failed to get payment by session: %w", err)
	}

	return payment, nil
}

// ListByOrderID возвращает платежи по заказу
func (r *PostgresPaymentRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at`
	return r.queryPayments(ctx, query, orderID)
}

// ListByBusinessID возвращает платежи бизнеса
func (r *PostgresPaymentRepository) ListByBusinessID(ctx context.Context, businessID uuid.UUID) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE business_id = $1 ORDER BY created_at`
	return r.queryPayments(ctx, query, businessID)
}

// Transition выполняет условный переход статуса.
// Охрана по текущему статусу выполняется в самом UPDATE: два конкурентных
// подтверждения одной сессии не могут выполнить переход дважды.
func (r *PostgresPaymentRepository) Transition(ctx context.Context, id uuid.UUID, t repository.StatusTransition) (domain.Payment, error) {
	query := `
		UPDATE payments
		SET status = $3,
			gift_card_charged_cents = COALESCE($4, gift_card_charged_cents),
			completed_at = COALESCE($5, completed_at),
			refunded_at = COALESCE($6, refunded_at)
		WHERE id = $1 AND status = $2
		RETURNING ` + paymentColumns

	payment, err := r.scanPayment(r.db.QueryRow(
		ctx,
		query,
		id,
		string(t.From),
		string(t.To),
		t.GiftCardChargedCents,
		t.CompletedAt,
		t.RefundedAt,
	))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Либо платежа нет, либо статус уже изменился
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return domain.Payment{}, getErr
			}
			return domain.Payment{}, repository.ErrStatusConflict
		}
		return domain.Payment{}, fmt.Errorf("failed to transition payment: %w", err)
	}

	return payment, nil
}

func (r *PostgresPaymentRepository) queryPayments(ctx context.Context, query string, arg any) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		payment, err := r.scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}

	return payments, nil
}

func (r *PostgresPaymentRepository) scanPayment(row pgx.Row) (domain.Payment, error) {
	var payment domain.Payment
	var status string

	err := row.Scan(
		&payment.ID,
		&payment.BusinessID,
		&payment.OrderID,
		&payment.AmountCents,
		&payment.Currency,
		&payment.GiftCardID,
		&payment.GiftCardPlannedCents,
		&payment.GiftCardChargedCents,
		&payment.ExternalSessionID,
		&status,
		&payment.EmployeeID,
		&payment.CreatedAt,
		&payment.CompletedAt,
		&payment.RefundedAt,
	)
	if err != nil {
		return domain.Payment{}, err
	}

	parsed, err := domain.ParsePaymentStatus(status)
	if err != nil {
		return domain.Payment{}, err
	}
	payment.Status = parsed

	return payment, nil
}
