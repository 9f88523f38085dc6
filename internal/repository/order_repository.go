package repository

import (
	"context"
	"database/sql"
	"fmt"

	"hedgebot/internal/models"
)

// OrderRepository хранит журнал ордеров, размещённых торговым ядром
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает репозиторий ордеров
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create сохраняет запись об ордере и возвращает её ID
func (r *OrderRepository) Create(ctx context.Context, rec *models.OrderRecord) (int, error) {
	query := `
		INSERT INTO orders (execution_id, exchange_id, symbol, leg, side, type,
			reduce_only, quantity_base, filled_base, avg_fill_price, status,
			error_message, created_at, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	var id int
	err := r.db.QueryRowContext(ctx, query,
		rec.ExecutionID, rec.ExchangeID, rec.Symbol, rec.Leg, rec.Side, rec.Type,
		rec.ReduceOnly, rec.QuantityBase, rec.FilledBase, rec.AvgFillPrice,
		rec.Status, rec.ErrorMessage, rec.CreatedAt, rec.FilledAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}

	return id, nil
}

// ListByExecution возвращает ордера одной оркестрации
func (r *OrderRepository) ListByExecution(ctx context.Context, executionID int) ([]models.OrderRecord, error) {
	query := `
		SELECT id, execution_id, exchange_id, symbol, leg, side, type,
			reduce_only, quantity_base, filled_base, avg_fill_price, status,
			error_message, created_at, filled_at
		FROM orders
		WHERE execution_id = $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var records []models.OrderRecord
	for rows.Next() {
		var rec models.OrderRecord
		var errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.ExecutionID, &rec.ExchangeID, &rec.Symbol,
			&rec.Leg, &rec.Side, &rec.Type, &rec.ReduceOnly, &rec.QuantityBase,
			&rec.FilledBase, &rec.AvgFillPrice, &rec.Status, &errMsg,
			&rec.CreatedAt, &rec.FilledAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		rec.ErrorMessage = errMsg.String
		records = append(records, rec)
	}

	return records, rows.Err()
}
