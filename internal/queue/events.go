package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pushfanout/internal/model"
)

// Command types for the notification stream
const (
	CommandSendNotification = "notification.send"
	CommandSendProject      = "notification.send_project"
	CommandRegisterToken    = "device_token.register"
	CommandRemoveToken      = "device_token.remove"
	CommandDeactivateAll    = "device_token.deactivate_all"
	CommandMarkRead         = "notification.mark_read"
)

// Stream names
const (
	StreamNotifications = "stream:notifications"
)

// Consumer group name for push dispatchers
const (
	ConsumerGroupDispatchers = "push_dispatchers"
)

// ErrMalformedCommand is returned for stream entries that cannot be parsed
// into a usable command. They are acknowledged and dropped.
var ErrMalformedCommand = errors.New("malformed command")

// Command is one unit of work published to the notification stream.
// The acting user is always carried explicitly.
type Command struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix timestamp when the command was issued

	UserID    string `json:"user_id,omitempty"`
	ProjectID int64  `json:"project_id,omitempty"`

	// Send commands
	Notification *model.NotificationRequest `json:"notification,omitempty"`

	// Token commands
	Token *model.RegisterTokenRequest `json:"token,omitempty"`

	// Read receipts
	NotificationIDs []string `json:"notification_ids,omitempty"`
}

// NewSendNotificationCommand asks a dispatcher to notify every device of userID.
func NewSendNotificationCommand(userID string, req model.NotificationRequest) Command {
	return Command{
		Type:         CommandSendNotification,
		Timestamp:    time.Now().Unix(),
		UserID:       userID,
		Notification: &req,
	}
}

// NewSendProjectCommand asks a dispatcher to notify the freelancer of a project.
func NewSendProjectCommand(projectID int64, req model.NotificationRequest) Command {
	return Command{
		Type:         CommandSendProject,
		Timestamp:    time.Now().Unix(),
		ProjectID:    projectID,
		Notification: &req,
	}
}

// NewRegisterTokenCommand registers or refreshes a device token for userID.
func NewRegisterTokenCommand(userID string, req model.RegisterTokenRequest) Command {
	return Command{
		Type:      CommandRegisterToken,
		Timestamp: time.Now().Unix(),
		UserID:    userID,
		Token:     &req,
	}
}

// NewRemoveTokenCommand deletes one device token of userID (single device logout).
func NewRemoveTokenCommand(userID, token string) Command {
	return Command{
		Type:      CommandRemoveToken,
		Timestamp: time.Now().Unix(),
		UserID:    userID,
		Token:     &model.RegisterTokenRequest{Token: token},
	}
}

// NewDeactivateAllCommand deactivates every device token of userID.
func NewDeactivateAllCommand(userID string) Command {
	return Command{
		Type:      CommandDeactivateAll,
		Timestamp: time.Now().Unix(),
		UserID:    userID,
	}
}

// NewMarkReadCommand marks notifications of userID as read (badge reset).
func NewMarkReadCommand(userID string, notificationIDs []string) Command {
	return Command{
		Type:            CommandMarkRead,
		Timestamp:       time.Now().Unix(),
		UserID:          userID,
		NotificationIDs: notificationIDs,
	}
}

// Validate checks that the command carries the fields its type needs.
func (c Command) Validate() error {
	switch c.Type {
	case CommandSendNotification:
		if c.UserID == "" || c.Notification == nil {
			return fmt.Errorf("%w: %s needs user_id and notification", ErrMalformedCommand, c.Type)
		}
	case CommandSendProject:
		if c.ProjectID <= 0 || c.Notification == nil {
			return fmt.Errorf("%w: %s needs project_id and notification", ErrMalformedCommand, c.Type)
		}
	case CommandRegisterToken, CommandRemoveToken:
		if c.UserID == "" || c.Token == nil {
			return fmt.Errorf("%w: %s needs user_id and token", ErrMalformedCommand, c.Type)
		}
	case CommandDeactivateAll:
		if c.UserID == "" {
			return fmt.Errorf("%w: %s needs user_id", ErrMalformedCommand, c.Type)
		}
	case CommandMarkRead:
		if c.UserID == "" || len(c.NotificationIDs) == 0 {
			return fmt.Errorf("%w: %s needs user_id and notification_ids", ErrMalformedCommand, c.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedCommand, c.Type)
	}
	return nil
}

// ToMap converts the command to a map for Redis XADD.
// Redis Streams store field-value pairs, so we serialize to JSON in a "data" field.
func (c Command) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	return map[string]interface{}{
		"type": c.Type,
		"data": string(data),
	}, nil
}

// ParseCommand parses and validates a Command from Redis stream message values.
func ParseCommand(values map[string]interface{}) (Command, error) {
	data, ok := values["data"].(string)
	if !ok {
		return Command{}, fmt.Errorf("%w: missing or invalid 'data' field", ErrMalformedCommand)
	}

	var cmd Command
	if err := json.Unmarshal([]byte(data), &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: unmarshal: %w", ErrMalformedCommand, err)
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}
