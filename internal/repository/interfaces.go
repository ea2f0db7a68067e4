package repository

import (
	"context"

	"pushfanout/internal/model"
)

type DeviceTokenRepository interface {
	// Upsert creates or refreshes a token keyed by its value and returns the stored row.
	// An existing token is moved to userID and reactivated.
	Upsert(ctx context.Context, userID, token string, deviceType model.DeviceType, deviceInfo string) (*model.DeviceToken, error)
	// ListActive returns only the active tokens of a user
	ListActive(ctx context.Context, userID string) ([]model.DeviceToken, error)
	// Deactivate flips is_active=false for the given ids in one statement
	Deactivate(ctx context.Context, ids []string) (int64, error)
	// DeactivateAll flips every token of a user to inactive
	DeactivateAll(ctx context.Context, userID string) (int64, error)
	// Delete removes a token owned by userID
	Delete(ctx context.Context, userID, token string) (bool, error)
}

type NotificationRepository interface {
	// Create inserts a PENDING notification and returns it with server defaults filled in
	Create(ctx context.Context, n *model.Notification) error
	// UpdateStatus moves a PENDING notification to a terminal status.
	// Returns false if the record was already terminal or does not exist.
	UpdateStatus(ctx context.Context, id string, status model.DeliveryStatus) (bool, error)
	// GetByID returns a single notification
	GetByID(ctx context.Context, id string) (*model.Notification, error)
	// ListByUser returns the newest notifications of a user
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	// MarkAsRead marks specific notifications as read
	MarkAsRead(ctx context.Context, userID string, ids []string) error
	// GetUnreadCount returns the count of unread notifications
	GetUnreadCount(ctx context.Context, userID string) (int, error)
}

type UserRepository interface {
	// GetRecipient returns the push profile of a user
	GetRecipient(ctx context.Context, userID string) (*model.Recipient, error)
}

type ProjectRepository interface {
	// GetByID returns the participants of a project
	GetByID(ctx context.Context, projectID int64) (*model.Project, error)
}
