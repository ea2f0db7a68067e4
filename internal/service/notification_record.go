package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"pushfanout/internal/model"
	"pushfanout/internal/repository"
)

const (
	defaultFinalizeAttempts = 3
	finalizeBackoff         = 200 * time.Millisecond

	defaultListLimit = 20
	maxListLimit     = 50
)

// RecordManager owns the persisted lifecycle of a notification:
// PENDING on Open, then exactly one transition to SENT or FAILED.
type RecordManager struct {
	notifRepo        repository.NotificationRepository
	finalizeAttempts int
	backoff          time.Duration
}

func NewRecordManager(notifRepo repository.NotificationRepository, finalizeAttempts int) *RecordManager {
	if finalizeAttempts <= 0 {
		finalizeAttempts = defaultFinalizeAttempts
	}
	return &RecordManager{
		notifRepo:        notifRepo,
		finalizeAttempts: finalizeAttempts,
		backoff:          finalizeBackoff,
	}
}

// Open persists a PENDING record for userID.
// The insert has committed when Open returns, before any provider is called.
func (m *RecordManager) Open(ctx context.Context, userID string, req model.NotificationRequest) (*model.Notification, error) {
	data := "{}"
	if len(req.Data) > 0 {
		b, err := json.Marshal(req.Data)
		if err != nil {
			return nil, fmt.Errorf("encode notification data: %w", err)
		}
		data = string(b)
	}

	n := &model.Notification{
		ID:             uuid.NewString(),
		UserID:         userID,
		Title:          req.Title,
		Body:           req.Body,
		Data:           data,
		Type:           req.Type,
		DeliveryStatus: model.DeliveryStatusPending,
	}
	if err := m.notifRepo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	return n, nil
}

// Finalize moves a PENDING record to its terminal status.
//
// Store errors are retried on a context that ignores the caller's
// cancellation; a record left PENDING is worse than a late write.
// Finalizing an already terminal record is a no-op.
func (m *RecordManager) Finalize(ctx context.Context, id string, status model.DeliveryStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize notification %s: status %q is not terminal", id, status)
	}

	ctx = context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= m.finalizeAttempts; attempt++ {
		updated, err := m.notifRepo.UpdateStatus(ctx, id, status)
		if err == nil {
			if !updated {
				log.Printf("[RecordManager] Notification %s already finalized, skipping %s", id, status)
			}
			return nil
		}
		lastErr = err
		log.Printf("[RecordManager] Finalize %s attempt %d/%d failed: %v", id, attempt, m.finalizeAttempts, err)
		if attempt < m.finalizeAttempts {
			time.Sleep(time.Duration(attempt) * m.backoff)
		}
	}
	return fmt.Errorf("%w: finalize notification %s: %w", model.ErrStoreUnavailable, id, lastErr)
}

// List returns the newest notifications of a user with the unread count.
func (m *RecordManager) List(ctx context.Context, userID string, limit int) (*model.NotificationListResponse, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	notifications, err := m.notifRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	unread, err := m.notifRepo.GetUnreadCount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}

	resp := &model.NotificationListResponse{
		Notifications: make([]model.NotificationResponse, 0, len(notifications)),
		UnreadCount:   unread,
	}
	for i := range notifications {
		resp.Notifications = append(resp.Notifications, *model.NewNotificationResponse(&notifications[i]))
	}
	return resp, nil
}

// MarkAsRead marks specific notifications of userID as read.
func (m *RecordManager) MarkAsRead(ctx context.Context, userID string, ids []string) error {
	if err := m.notifRepo.MarkAsRead(ctx, userID, ids); err != nil {
		return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	return nil
}

// UnreadCount returns the number of unread notifications (for badge display).
func (m *RecordManager) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := m.notifRepo.GetUnreadCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	return n, nil
}
