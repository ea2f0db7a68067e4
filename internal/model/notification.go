package model

import (
	"encoding/json"
	"strings"
	"time"
)

// NotificationType is the application-defined category of a notification.
type NotificationType string

// Notification types
const (
	NotificationTypeProjectAssigned  NotificationType = "PROJECT_ASSIGNED"
	NotificationTypeProjectUpdated   NotificationType = "PROJECT_UPDATED"
	NotificationTypeProjectCompleted NotificationType = "PROJECT_COMPLETED"
	NotificationTypeNewReview        NotificationType = "NEW_REVIEW"
	NotificationTypeMessage          NotificationType = "MESSAGE"
	NotificationTypeSystem           NotificationType = "SYSTEM"
)

// Valid reports whether t is one of the known categories.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeProjectAssigned, NotificationTypeProjectUpdated, NotificationTypeProjectCompleted,
		NotificationTypeNewReview, NotificationTypeMessage, NotificationTypeSystem:
		return true
	}
	return false
}

// DeliveryStatus is the persisted outcome of a dispatch.
type DeliveryStatus string

// Delivery statuses. PENDING transitions exactly once to SENT or FAILED.
const (
	DeliveryStatusPending DeliveryStatus = "PENDING"
	DeliveryStatusSent    DeliveryStatus = "SENT"
	DeliveryStatusFailed  DeliveryStatus = "FAILED"
)

// Terminal reports whether s is SENT or FAILED.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusSent || s == DeliveryStatusFailed
}

// ClickActionKey is the data payload key surfaced as NotificationResponse.ClickAction.
const ClickActionKey = "clickAction"

// Notification is one recipient's notification history row.
// Delivery is tracked per user, not per device.
type Notification struct {
	ID             string           `db:"id" json:"id"`
	UserID         string           `db:"user_id" json:"-"`
	Title          string           `db:"title" json:"title"`
	Body           string           `db:"body" json:"body"`
	Data           string           `db:"data" json:"-"` // JSON object text
	Type           NotificationType `db:"type" json:"type"`
	DeliveryStatus DeliveryStatus   `db:"delivery_status" json:"delivery_status"`
	IsRead         bool             `db:"is_read" json:"is_read"`
	SentAt         time.Time        `db:"sent_at" json:"sent_at"`
}

// ClickAction extracts the click action from the stored data payload.
// Returns "" when the payload is empty, malformed or has no click action.
func (n *Notification) ClickAction() string {
	if n.Data == "" {
		return ""
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(n.Data), &data); err != nil {
		return ""
	}
	return data[ClickActionKey]
}

// NotificationRequest is the caller supplied content of a notification.
type NotificationRequest struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
	Type  NotificationType  `json:"type"`
}

// Validate checks the fields every dispatch needs.
func (r NotificationRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Body) == "" {
		return ErrInvalidRequest
	}
	if !r.Type.Valid() {
		return ErrInvalidRequest
	}
	return nil
}

// NotificationResponse is the caller facing view of a persisted notification.
type NotificationResponse struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Body           string           `json:"body"`
	Type           NotificationType `json:"type"`
	IsRead         bool             `json:"is_read"`
	SentAt         time.Time        `json:"sent_at"`
	ClickAction    string           `json:"click_action,omitempty"`
	DeliveryStatus DeliveryStatus   `json:"delivery_status"`
}

// NewNotificationResponse builds the response view of n.
func NewNotificationResponse(n *Notification) *NotificationResponse {
	return &NotificationResponse{
		ID:             n.ID,
		Title:          n.Title,
		Body:           n.Body,
		Type:           n.Type,
		IsRead:         n.IsRead,
		SentAt:         n.SentAt,
		ClickAction:    n.ClickAction(),
		DeliveryStatus: n.DeliveryStatus,
	}
}

// PushMessage is what gets sent to a single device.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// NotificationListResponse is the notification history page.
type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	UnreadCount   int                    `json:"unread_count"`
}

// DispatchOutcome summarizes a finished dispatch for downstream consumers.
type DispatchOutcome struct {
	NotificationID string
	UserID         string
	Type           NotificationType
	Status         DeliveryStatus
	Delivered      int
	Failed         int
	Deactivated    int64
	UnreadCount    int // badge value after this notification
	DispatchedAt   time.Time
}
