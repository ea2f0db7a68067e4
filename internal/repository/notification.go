package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pushfanout/internal/model"
)

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Create inserts a new notification.
// The row is committed before Create returns, so a crash during fan-out
// still leaves an auditable PENDING record.
func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, title, body, data, type, delivery_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING is_read, sent_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		n.ID,
		n.UserID,
		n.Title,
		n.Body,
		n.Data,
		n.Type,
		n.DeliveryStatus,
	)
	if err := row.Scan(&n.IsRead, &n.SentAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// UpdateStatus sets the terminal delivery status of a PENDING notification.
// A record that is already terminal is left untouched.
func (r *notificationRepository) UpdateStatus(ctx context.Context, id string, status model.DeliveryStatus) (bool, error) {
	query := `
		UPDATE notifications SET delivery_status = $2
		WHERE id = $1 AND delivery_status = 'PENDING'
	`
	res, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return false, fmt.Errorf("update notification status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update notification status: %w", err)
	}
	return n > 0, nil
}

// GetByID returns a notification by id.
func (r *notificationRepository) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	query := `
		SELECT id, user_id, title, body, data, type, delivery_status, is_read, sent_at
		FROM notifications
		WHERE id = $1
	`
	var n model.Notification
	err := r.db.GetContext(ctx, &n, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// ListByUser returns the newest notifications of a user.
func (r *notificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	query := `
		SELECT id, user_id, title, body, data, type, delivery_status, is_read, sent_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`
	var notifications []model.Notification
	err := r.db.SelectContext(ctx, &notifications, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// MarkAsRead marks specific notifications as read.
// Only notifications owned by userID are affected.
func (r *notificationRepository) MarkAsRead(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND id = ANY($2)`
	_, err := r.db.ExecContext(ctx, query, userID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}

// GetUnreadCount returns the count of unread notifications.
func (r *notificationRepository) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
