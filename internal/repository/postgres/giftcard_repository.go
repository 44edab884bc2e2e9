package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/internal/repository"
	"github.com/posly/settlement-service/pkg/logger"
)

const giftCardColumns = `
	id, code, business_id, balance_cents, status, expires_at, issued_at, version
`

// PostgresGiftCardRepository реализация репозитория подарочных карт через PostgreSQL
type PostgresGiftCardRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresGiftCardRepository создает новый репозиторий подарочных карт через PostgreSQL
func NewPostgresGiftCardRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresGiftCardRepository {
	return &PostgresGiftCardRepository{
		db:  db,
		log: log,
	}
}

// Create создает новую подарочную карту
func (r *PostgresGiftCardRepository) Create(ctx context.Context, card domain.GiftCard) (domain.GiftCard, error) {
	query := `
		INSERT INTO gift_cards (id, code, business_id, balance_cents, status, expires_at, issued_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
		RETURNING issued_at, version
	`

	err := r.db.QueryRow(
		ctx,
		query,
		card.ID,
		card.Code,
		card.BusinessID,
		card.BalanceCents,
		string(card.Status),
		card.ExpiresAt,
		card.IssuedAt,
	).Scan(&card.IssuedAt, &card.Version)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// Нарушение уникальности кода в рамках бизнеса
			if pgErr.Code == "23505" {
				return domain.GiftCard{}, repository.ErrDuplicate
			}
		}
		return domain.GiftCard{}, fmt.Errorf("failed to create gift card: %w", err)
	}

	return card, nil
}

// GetByID возвращает карту по ID
func (r *PostgresGiftCardRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.GiftCard, error) {
	query := `SELECT ` + giftCardColumns + ` FROM gift_cards WHERE id = $1`

	card, err := r.scanGiftCard(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GiftCard{}, repository.ErrNotFound
		}
		return domain.GiftCard{}, fmt.Errorf("failed to get gift card: %w", err)
	}

	return card, nil
}

// GetByCode возвращает карту по коду, предпочитая карту вызывающего бизнеса
func (r *PostgresGiftCardRepository) GetByCode(ctx context.Context, businessID uuid.UUID, code string) (domain.GiftCard, error) {
	query := `
		SELECT ` + giftCardColumns + `
		FROM gift_cards
		WHERE lower(code) = lower($2)
		ORDER BY (business_id = $1) DESC
		LIMIT 1
	`

	card, err := r.scanGiftCard(r.db.QueryRow(ctx, query, businessID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GiftCard{}, repository.ErrNotFound
		}
		return domain.GiftCard{}, fmt.Errorf("failed to get gift card by code: %w", err)
	}

	return card, nil
}

// CompareAndSetBalance атомарно записывает новый баланс при совпадении версии
func (r *PostgresGiftCardRepository) CompareAndSetBalance(ctx context.Context, id uuid.UUID, expectedVersion, newBalanceCents int64) (domain.GiftCard, error) {
	query := `
		UPDATE gift_cards
		SET balance_cents = $3, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING ` + giftCardColumns

	card, err := r.scanGiftCard(r.db.QueryRow(ctx, query, id, expectedVersion, newBalanceCents))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Либо карты нет, либо версия изменилась
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return domain.GiftCard{}, getErr
			}
			return domain.GiftCard{}, repository.ErrVersionConflict
		}
		return domain.GiftCard{}, fmt.Errorf("failed to update gift card balance: %w", err)
	}

	return card, nil
}

func (r *PostgresGiftCardRepository) scanGiftCard(row pgx.Row) (domain.GiftCard, error) {
	var card domain.GiftCard
	var status string

	err := row.Scan(
		&card.ID,
		&card.Code,
		&card.BusinessID,
		&card.BalanceCents,
		&status,
		&card.ExpiresAt,
		&card.IssuedAt,
		&card.Version,
	)
	if err != nil {
		return domain.GiftCard{}, err
	}

	parsed, err := domain.ParseGiftCardStatus(status)
	if err != nil {
		return domain.GiftCard{}, err
	}
	card.Status = parsed

	return card, nil
}
