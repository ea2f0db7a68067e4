package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"pushfanout/internal/model"
)

// SubjectNotificationDispatched carries one event per finished dispatch.
const SubjectNotificationDispatched = "notification.dispatched"

// NotificationDispatchedEvent is the JSON body published after a dispatch is finalized.
type NotificationDispatchedEvent struct {
	EventType      string                 `json:"event_type"`
	NotificationID string                 `json:"notification_id"`
	UserID         string                 `json:"user_id"`
	Type           model.NotificationType `json:"type"`
	Status         model.DeliveryStatus   `json:"status"`
	Delivered      int                    `json:"delivered"`
	Failed         int                    `json:"failed"`
	Deactivated    int64                  `json:"deactivated"`
	UnreadCount    int                    `json:"unread_count"`
	DispatchedAt   time.Time              `json:"dispatched_at"`
}

// NewNotificationDispatchedEvent builds the wire event for an outcome.
func NewNotificationDispatchedEvent(o model.DispatchOutcome) NotificationDispatchedEvent {
	return NotificationDispatchedEvent{
		EventType:      SubjectNotificationDispatched,
		NotificationID: o.NotificationID,
		UserID:         o.UserID,
		Type:           o.Type,
		Status:         o.Status,
		Delivered:      o.Delivered,
		Failed:         o.Failed,
		Deactivated:    o.Deactivated,
		UnreadCount:    o.UnreadCount,
		DispatchedAt:   o.DispatchedAt,
	}
}

type natsConn interface {
	Publish(subject string, data []byte) error
}

type NatsPublisher struct {
	conn natsConn
	nc   *nats.Conn
}

func NewNatsPublisher(natsURL string) (*NatsPublisher, error) {
	nc, err := nats.Connect(natsURL, nats.Name("push-dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NatsPublisher{conn: nc, nc: nc}, nil
}

// PublishDispatched announces a finalized dispatch. NATS core publish is
// fire-and-forget, so ctx is only checked before sending.
func (p *NatsPublisher) PublishDispatched(ctx context.Context, outcome model.DispatchOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	eventJSON, err := json.Marshal(NewNotificationDispatchedEvent(outcome))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.conn.Publish(SubjectNotificationDispatched, eventJSON); err != nil {
		log.Printf("[Events] Error publishing to NATS: %v", err)
		return err
	}

	log.Printf("[Events] Published %s for notification %s", SubjectNotificationDispatched, outcome.NotificationID)
	return nil
}

// Close flushes buffered events and closes the connection.
func (p *NatsPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		log.Printf("[Events] Drain failed: %v", err)
		p.nc.Close()
	}
}
