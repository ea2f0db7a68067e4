package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"pushfanout/internal/model"
)

// Publisher defines the interface for publishing commands to a stream.
type Publisher interface {
	// Publish adds a command to the specified stream.
	// Returns the message ID assigned by Redis.
	Publish(ctx context.Context, stream string, cmd Command) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
// It is the producer-side API: upstream services (account, project, chat)
// import it to hand work to the dispatchers. The dispatcher binary itself
// only consumes.
type RedisPublisher struct {
	client *redis.Client
}

// NewPublisher creates a new RedisPublisher backed by Redis Streams.
func NewPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish adds a command to the stream using XADD.
// Uses "*" for auto-generated message ID (timestamp-sequence).
func (p *RedisPublisher) Publish(ctx context.Context, stream string, cmd Command) (string, error) {
	startTime := time.Now()

	if err := cmd.Validate(); err != nil {
		return "", err
	}

	values, err := cmd.ToMap()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s err=%v", stream, cmd.Type, err)
		return "", fmt.Errorf("serialize command: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s err=%v", stream, cmd.Type, err)
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	log.Printf("[Publisher] Publish OK: stream=%s type=%s msgID=%s duration=%v",
		stream, cmd.Type, messageID, time.Since(startTime))
	return messageID, nil
}

// PublishSendNotification is a convenience method for notifying one user.
func (p *RedisPublisher) PublishSendNotification(ctx context.Context, userID string, req model.NotificationRequest) (string, error) {
	return p.Publish(ctx, StreamNotifications, NewSendNotificationCommand(userID, req))
}

// PublishSendToProject is a convenience method for notifying a project's freelancer.
func (p *RedisPublisher) PublishSendToProject(ctx context.Context, projectID int64, req model.NotificationRequest) (string, error) {
	return p.Publish(ctx, StreamNotifications, NewSendProjectCommand(projectID, req))
}

// PublishRegisterToken is a convenience method for registering a device token.
func (p *RedisPublisher) PublishRegisterToken(ctx context.Context, userID string, req model.RegisterTokenRequest) (string, error) {
	return p.Publish(ctx, StreamNotifications, NewRegisterTokenCommand(userID, req))
}

// PublishRemoveToken is a convenience method for removing a device token.
func (p *RedisPublisher) PublishRemoveToken(ctx context.Context, userID, token string) (string, error) {
	return p.Publish(ctx, StreamNotifications, NewRemoveTokenCommand(userID, token))
}

// PublishDeactivateAll is a convenience method for deactivating every token of a user.
func (p *RedisPublisher) PublishDeactivateAll(ctx context.Context, userID string) (string, error) {
	return p.Publish(ctx, StreamNotifications, NewDeactivateAllCommand(userID))
}

// PublishMarkRead is a convenience method for marking notifications as read.
func (p *RedisPublisher) PublishMarkRead(ctx context.Context, userID string, notificationIDs []string) (string, error) {
	return p.Publish(ctx, StreamNotifications, NewMarkReadCommand(userID, notificationIDs))
}
