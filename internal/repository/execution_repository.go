package repository

import (
	"context"
	"database/sql"
	"fmt"

	"hedgebot/internal/models"
)

// ExecutionRepository хранит записи об оркестрациях enter/exit
type ExecutionRepository struct {
	db *sql.DB
}

// NewExecutionRepository создает репозиторий исполнений
func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create сохраняет запись об исполнении и возвращает её ID
func (r *ExecutionRepository) Create(ctx context.Context, rec *models.ExecutionRecord) (int, error) {
	query := `
		INSERT INTO executions (operation, success, aborted, reason, drift_bps, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int
	err := r.db.QueryRowContext(ctx, query,
		rec.Operation, rec.Success, rec.Aborted, rec.Reason, rec.DriftBps, rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert execution: %w", err)
	}

	return id, nil
}

// List возвращает последние записи об исполнениях, новые первыми
func (r *ExecutionRepository) List(ctx context.Context, limit int) ([]models.ExecutionRecord, error) {
	query := `
		SELECT id, operation, success, aborted, reason, drift_bps, created_at
		FROM executions
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var records []models.ExecutionRecord
	for rows.Next() {
		var rec models.ExecutionRecord
		if err := rows.Scan(&rec.ID, &rec.Operation, &rec.Success, &rec.Aborted,
			&rec.Reason, &rec.DriftBps, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetByID возвращает запись об исполнении или nil, если её нет
func (r *ExecutionRepository) GetByID(ctx context.Context, id int) (*models.ExecutionRecord, error) {
	query := `
		SELECT id, operation, success, aborted, reason, drift_bps, created_at
		FROM executions
		WHERE id = $1`

	var rec models.ExecutionRecord
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Operation, &rec.Success, &rec.Aborted,
		&rec.Reason, &rec.DriftBps, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return &rec, nil
}
