package repository

import (
	"context"
	"database/sql"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"hedgebot/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NotificationRepository хранит историю уведомлений
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает репозиторий уведомлений
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create сохраняет уведомление; meta сериализуется в JSONB
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) (int, error) {
	var meta []byte
	if n.Meta != nil {
		var err error
		meta, err = json.Marshal(n.Meta)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal notification meta: %w", err)
		}
	}

	query := `
		INSERT INTO notifications (timestamp, type, severity, message, meta)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int
	err := r.db.QueryRowContext(ctx, query,
		n.Timestamp, n.Type, n.Severity, n.Message, meta,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert notification: %w", err)
	}

	return id, nil
}

// ListRecent возвращает последние уведомления, новые первыми
func (r *NotificationRepository) ListRecent(ctx context.Context, limit int) ([]models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, message, meta
		FROM notifications
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var records []models.Notification
	for rows.Next() {
		var n models.Notification
		var meta sql.NullString
		if err := rows.Scan(&n.ID, &n.Timestamp, &n.Type, &n.Severity,
			&n.Message, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.UnmarshalFromString(meta.String, &n.Meta); err != nil {
				return nil, fmt.Errorf("failed to unmarshal notification meta: %w", err)
			}
		}
		records = append(records, n)
	}

	return records, rows.Err()
}
