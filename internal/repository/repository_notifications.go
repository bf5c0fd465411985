package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"repairmarket/internal/models"
)

const notificationColumns = `
	id,
	user_id,
	type,
	title,
	message,
	data,
	is_read,
	read_at,
	created_at
`

func scanNotification(row interface{ Scan(...interface{}) error }) (models.Notification, error) {
	var n models.Notification
	var data []byte
	var readAt sql.NullTime

	err := row.Scan(&n.Id, &n.UserId, &n.Type, &n.Title, &n.Message,
		&data, &n.IsRead, &readAt, &n.CreatedAt)
	if err != nil {
		return n, err
	}

	if len(data) > 0 {
		if err = json.Unmarshal(data, &n.Data); err != nil {
			return n, fmt.Errorf("invalid data payload: %w", err)
		}
	}
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}

	return n, nil
}

func (repo *Repository) AddNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return n, fmt.Errorf("repository.Repository.AddNotification: %w", err)
	}

	query := `
	INSERT INTO notifications (user_id, type, title, message, data)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, is_read, created_at
	`

	row := repo.db.QueryRowContext(ctx, query, n.UserId, n.Type, n.Title, n.Message, data)
	if err = row.Scan(&n.Id, &n.IsRead, &n.CreatedAt); err != nil {
		return n, fmt.Errorf("repository.Repository.AddNotification: %w", transient(err))
	}

	return n, nil
}

func (repo *Repository) Notifications(ctx context.Context, userId string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	query := `
	SELECT ` + notificationColumns + `
	FROM notifications
	WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
	ORDER BY created_at DESC
	LIMIT $3
	OFFSET $4
	`

	var limitArg interface{}
	if limit > 0 {
		limitArg = limit
	}

	rows, err := repo.db.QueryContext(ctx, query, userId, unreadOnly, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.Notifications: %w", transient(err))
	}
	defer rows.Close()

	var result []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.Notifications: row scan failed: %w", err)
		}
		result = append(result, n)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.Notifications: %w", rows.Err())
	}

	return result, nil
}

// MarkNotificationRead flips a notification to read. Ownership is part
// of the predicate, so another user's notification reads as missing.
func (repo *Repository) MarkNotificationRead(ctx context.Context, userId, notificationId string) (models.Notification, error) {
	query := `
	UPDATE notifications
	SET (is_read, read_at) = (TRUE, COALESCE(read_at, CURRENT_TIMESTAMP))
	WHERE id = $1 AND user_id = $2
	RETURNING ` + notificationColumns

	n, err := scanNotification(repo.db.QueryRowContext(ctx, query, notificationId, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return n, fmt.Errorf("repository.Repository.MarkNotificationRead: %w", models.ErrNoNotification)
	} else if err != nil {
		return n, fmt.Errorf("repository.Repository.MarkNotificationRead: %w", transient(err))
	}

	return n, nil
}
