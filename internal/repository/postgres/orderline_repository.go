package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/pkg/logger"
)

// PostgresOrderLineRepository доступ на чтение к снимкам строк заказов.
// Строки пишет сервис заказов; здесь они только читаются для расчета итога.
type PostgresOrderLineRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresOrderLineRepository создает новый репозиторий строк заказов
func NewPostgresOrderLineRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresOrderLineRepository {
	return &PostgresOrderLineRepository{
		db:  db,
		log: log,
	}
}

// LinesByOrderID возвращает снимки строк заказа
func (r *PostgresOrderLineRepository) LinesByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.OrderLine, error) {
	query := `
		SELECT id, order_id, item_name, unit_price_cents, quantity, discount_cents, tax_rate_bps, captured_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY captured_at
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var line domain.OrderLine
		err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.ItemName,
			&line.UnitPriceCents,
			&line.Quantity,
			&line.DiscountCents,
			&line.TaxRateBps,
			&line.CapturedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order lines: %w", err)
	}

	return lines, nil
}
